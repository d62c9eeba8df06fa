// Package discover extracts login links, login forms and script-referenced
// endpoints from portal pages.
package discover

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// Page is a parsed HTML document together with the URL it was served from.
type Page struct {
	URL *url.URL
	Doc *goquery.Document
}

// Parse builds a Page from a response body.
func Parse(base *url.URL, body []byte) (*Page, error) {
	if base == nil {
		return nil, fmt.Errorf("parse page: base URL is required")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", base.Redacted(), err)
	}
	return &Page{URL: base, Doc: doc}, nil
}

// Text is the page's visible text with whitespace collapsed.
func (p *Page) Text() string {
	clone := p.Doc.Selection.Clone()
	clone.Find("script, style, noscript").Remove()
	return CollapseSpace(clone.Text())
}

// Resolve turns href into an absolute URL against the page URL. An empty
// href resolves to the page itself.
func (p *Page) Resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return p.URL.String(), true
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := p.URL.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

// Fold lower-cases s after NFC normalisation so decomposed Danish letters
// ("ø" as o + combining stroke) match keyword lists.
func Fold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// CollapseSpace trims s and squeezes internal whitespace runs to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContainsAny reports the first keyword found in folded text.
func ContainsAny(folded string, keywords []string) (string, bool) {
	for _, k := range keywords {
		if k != "" && strings.Contains(folded, Fold(k)) {
			return k, true
		}
	}
	return "", false
}
