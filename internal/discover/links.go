package discover

import "github.com/PuerkitoBio/goquery"

// Keywords identifying the parent-facing login entry points.
var (
	DefaultParentText = []string{"forældre", "foraeldre", "parent", "guardian", "voksen"}
	DefaultParentHref = []string{"parent", "foraeldr", "guardian", "voksen"}
)

// ParentLoginLinks returns, in document order and without duplicates, the
// absolute URLs of anchors whose text or href mentions a parent keyword.
func (d *Discoverer) ParentLoginLinks(p *Page) []string {
	var links []string
	seen := map[string]struct{}{}

	p.Doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := Fold(a.Text())
		_, textMatch := ContainsAny(text, d.ParentText)
		_, hrefMatch := ContainsAny(Fold(href), d.ParentHref)
		if !textMatch && !hrefMatch {
			return
		}
		abs, ok := p.Resolve(href)
		if !ok || abs == p.URL.String() {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})

	return links
}
