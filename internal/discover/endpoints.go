package discover

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// DefaultLoginEndpointPatterns match request-issuing idioms in inline
// scripts that point at login or auth APIs. The first capture group is the
// URL.
var DefaultLoginEndpointPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)["']([^"'\s]*api[^"'\s]*login[^"'\s]*)["']`),
	regexp.MustCompile(`(?i)["']([^"'\s]*auth[^"'\s]*api[^"'\s]*)["']`),
	regexp.MustCompile(`(?i)["']([^"'\s]*api[^"'\s]*auth[^"'\s]*)["']`),
	regexp.MustCompile(`(?i)["']([^"'\s]*ajax[^"'\s]*login[^"'\s]*)["']`),
	regexp.MustCompile(`(?i)fetch\(\s*["']([^"']+/api/[^"']+)["']`),
	regexp.MustCompile(`(?i)axios\.[a-z]+\(\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)\.open\(\s*["']POST["']\s*,\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)endpoint["']?\s*[:=]\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)loginUrl["']?\s*[:=]\s*["']([^"']+)["']`),
}

// DefaultAppointmentEndpointPatterns match script references to appointment
// data sources.
var DefaultAppointmentEndpointPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)["']([^"'\s]*api[^"'\s]*(?:appointment|aftale|calendar|kalender|schedule)[^"'\s]*)["']`),
	regexp.MustCompile(`(?i)fetch\(\s*["']([^"']+/api/[^"']*(?:appointment|aftale)[^"']*)["']`),
	regexp.MustCompile(`(?i)appointmentUrl["']?\s*[:=]\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)calendarEndpoint["']?\s*[:=]\s*["']([^"']+)["']`),
}

const minEndpointLength = 6

// ScriptEndpoints scans inline script text with patterns and returns the
// resolved, de-duplicated matches in discovery order, at most limit.
func ScriptEndpoints(p *Page, patterns []*regexp.Regexp, limit int) []string {
	var scripts []string
	p.Doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if text := s.Text(); strings.TrimSpace(text) != "" {
			scripts = append(scripts, text)
		}
	})

	var found []string
	seen := map[string]struct{}{}
	for _, pattern := range patterns {
		for _, script := range scripts {
			for _, m := range pattern.FindAllStringSubmatch(script, -1) {
				candidate := strings.TrimSpace(m[1])
				if len(candidate) < minEndpointLength || strings.IndexFunc(candidate, unicode.IsSpace) >= 0 {
					continue
				}
				abs, ok := p.Resolve(candidate)
				if !ok || abs == p.URL.String() {
					continue
				}
				if _, dup := seen[abs]; dup {
					continue
				}
				seen[abs] = struct{}{}
				found = append(found, abs)
				if limit > 0 && len(found) >= limit {
					return found
				}
			}
		}
	}
	return found
}

// ProbableEndpoints returns likely login API endpoints referenced by the
// page's scripts.
func (d *Discoverer) ProbableEndpoints(p *Page) []string {
	return ScriptEndpoints(p, d.EndpointPatterns, d.EndpointLimit)
}
