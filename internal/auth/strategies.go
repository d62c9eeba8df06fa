package auth

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/Takenobou/sfoweb-appointments/internal/transport"
)

// Strategy is one self-contained login path.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, p *Pass) Verdict
}

// FormStrategy submits the login page's own form or, failing that, the
// first login form behind each parent login link.
type FormStrategy struct{}

func (FormStrategy) Name() string { return "form" }

func (FormStrategy) Attempt(ctx context.Context, p *Pass) Verdict {
	page := p.LoginPage(ctx)
	if page == nil {
		return Verdict{Evidence: "login page unreachable"}
	}
	d := p.Discoverer()

	if form, ok := d.FirstLoginForm(page); ok {
		return p.Submit(ctx, form)
	}

	last := Verdict{Evidence: "no login form found"}
	for _, link := range d.ParentLoginLinks(page) {
		linked, ok := p.FetchPage(ctx, link)
		if !ok {
			continue
		}
		p.AddCandidates("parent-link", d.ProbableEndpoints(linked))

		form, ok := d.FirstLoginForm(linked)
		if !ok {
			continue
		}
		p.Logger().Debug("submitting parent login form", slog.String("action", transport.RedactURL(form.ActionURL)))
		if last = p.Submit(ctx, form); last.Authenticated {
			return last
		}
	}
	return last
}

// APIFieldPairs are the credential key names tried against login APIs.
var APIFieldPairs = [][2]string{
	{"username", "password"},
	{"email", "password"},
	{"login", "password"},
}

// APIStrategy posts credentials to script-referenced endpoints, first as
// JSON then form encoded, under each field naming convention.
type APIStrategy struct{}

func (APIStrategy) Name() string { return "api" }

func (APIStrategy) Attempt(ctx context.Context, p *Pass) Verdict {
	p.LoginPage(ctx)

	last := Verdict{Evidence: "no api endpoints discovered"}
	for _, c := range p.Candidates() {
		for _, pair := range APIFieldPairs {
			resp, ok := p.do(ctx, func() (*transport.Response, error) {
				return p.Session.PostJSON(ctx, c.URL, map[string]string{
					pair[0]: p.Credentials.Username,
					pair[1]: p.Credentials.Password,
				})
			})
			if ok {
				if last = p.JudgeAPI(resp); last.Authenticated {
					last.Evidence = c.URL + " (json " + pair[0] + "): " + last.Evidence
					return last
				}
			}
		}
		for _, pair := range APIFieldPairs {
			resp, ok := p.do(ctx, func() (*transport.Response, error) {
				return p.Session.PostForm(ctx, c.URL, url.Values{
					pair[0]: {p.Credentials.Username},
					pair[1]: {p.Credentials.Password},
				})
			})
			if ok {
				if last = p.JudgeAPI(resp); last.Authenticated {
					last.Evidence = c.URL + " (form " + pair[0] + "): " + last.Evidence
					return last
				}
			}
		}
	}
	return last
}

// DefaultOAuthPaths are redirect-style SSO entry points probed last.
var DefaultOAuthPaths = []string{
	"/oauth/authorize",
	"/oauth2/authorize",
	"/connect/authorize",
	"/sso/login",
	"/saml/login",
	"/auth/login",
	"/Account/Login",
}

// OAuthStrategy probes well-known SSO paths for a login form.
type OAuthStrategy struct {
	Paths []string
}

func (OAuthStrategy) Name() string { return "oauth" }

func (s OAuthStrategy) Attempt(ctx context.Context, p *Pass) Verdict {
	paths := s.Paths
	if len(paths) == 0 {
		paths = DefaultOAuthPaths
	}
	base, err := url.Parse(p.auth.cfg.LoginURL)
	if err != nil {
		return Verdict{Evidence: "invalid login url"}
	}

	last := Verdict{Evidence: "no sso login form found"}
	for _, path := range paths {
		ref, err := url.Parse(path)
		if err != nil {
			continue
		}
		page, ok := p.FetchPage(ctx, base.ResolveReference(ref).String())
		if !ok {
			continue
		}
		form, ok := p.Discoverer().FirstLoginForm(page)
		if !ok {
			continue
		}
		if last = p.Submit(ctx, form); last.Authenticated {
			return last
		}
	}
	return last
}
