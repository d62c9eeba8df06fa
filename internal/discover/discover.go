package discover

import "regexp"

// Discoverer holds the keyword sets used to recognise login entry points.
type Discoverer struct {
	ParentText       []string
	ParentHref       []string
	EndpointPatterns []*regexp.Regexp
	EndpointLimit    int
}

// New returns a Discoverer using the default Danish and English keywords.
func New() *Discoverer {
	return &Discoverer{
		ParentText:       DefaultParentText,
		ParentHref:       DefaultParentHref,
		EndpointPatterns: DefaultLoginEndpointPatterns,
		EndpointLimit:    5,
	}
}

// Result bundles everything discovered on one page.
type Result struct {
	ParentLoginLinks  []string
	LoginForms        []Form
	ProbableEndpoints []string
}

// Discover runs every extractor over the page.
func (d *Discoverer) Discover(p *Page) Result {
	return Result{
		ParentLoginLinks:  d.ParentLoginLinks(p),
		LoginForms:        d.LoginForms(p),
		ProbableEndpoints: d.ProbableEndpoints(p),
	}
}
