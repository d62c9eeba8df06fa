package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/Takenobou/sfoweb-appointments/internal/discover"
	"github.com/Takenobou/sfoweb-appointments/internal/model"
	"github.com/Takenobou/sfoweb-appointments/internal/transport"
)

// Candidate is an endpoint discovered during a pass and how it was found.
type Candidate struct {
	URL    string
	Method string
}

// Pass is the state of one authentication attempt. It is created by Login
// and discarded when Login returns.
type Pass struct {
	Session     *transport.Session
	Credentials model.Credentials

	auth       *Authenticator
	loginPage  *discover.Page
	loginTried bool
	candidates []Candidate
	seen       map[string]struct{}
	errs       []error
	responses  int
}

func newPass(a *Authenticator, sess *transport.Session, creds model.Credentials) *Pass {
	return &Pass{
		Session:     sess,
		Credentials: creds,
		auth:        a,
		seen:        map[string]struct{}{},
	}
}

// Discoverer exposes the authenticator's discoverer to strategies.
func (p *Pass) Discoverer() *discover.Discoverer { return p.auth.discoverer }

// Logger returns the authenticator's logger.
func (p *Pass) Logger() *slog.Logger { return p.auth.logger }

// LoginPage fetches the first reachable login page candidate once per pass.
func (p *Pass) LoginPage(ctx context.Context) *discover.Page {
	if p.loginTried {
		return p.loginPage
	}
	p.loginTried = true

	for _, u := range p.auth.loginCandidates() {
		page, ok := p.FetchPage(ctx, u)
		if !ok {
			continue
		}
		p.loginPage = page
		p.AddCandidates("login-page", p.Discoverer().ProbableEndpoints(page))
		return page
	}
	return nil
}

// FetchPage GETs u and parses a 2xx HTML response.
func (p *Pass) FetchPage(ctx context.Context, u string) (*discover.Page, bool) {
	resp, ok := p.do(ctx, func() (*transport.Response, error) { return p.Session.Get(ctx, u) })
	if !ok || !resp.OK() {
		return nil, false
	}
	page, err := discover.Parse(finalURL(resp, u), resp.Body)
	if err != nil {
		p.Logger().Debug("unparseable page", slog.String("url", transport.RedactURL(u)), slog.String("error", err.Error()))
		return nil, false
	}
	return page, true
}

// AddCandidates queues endpoints for the API strategy, skipping repeats.
func (p *Pass) AddCandidates(method string, urls []string) {
	for _, u := range urls {
		if _, dup := p.seen[u]; dup {
			continue
		}
		p.seen[u] = struct{}{}
		p.candidates = append(p.candidates, Candidate{URL: u, Method: method})
	}
}

// Candidates returns the endpoints queued so far.
func (p *Pass) Candidates() []Candidate {
	return p.candidates
}

// Submit posts the form with the pass credentials and judges the result.
// An accepted submission that is not judged authenticated on its own is
// confirmed against the protected resource.
func (p *Pass) Submit(ctx context.Context, form discover.Form) Verdict {
	resp, ok := p.do(ctx, func() (*transport.Response, error) {
		return p.Session.PostForm(ctx, form.ActionURL, form.Values(p.Credentials))
	})
	if !ok {
		return Verdict{Evidence: "submission failed"}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusFound {
		return Verdict{Evidence: "submission rejected: " + http.StatusText(resp.StatusCode)}
	}

	v := p.JudgePage(resp, form.ActionURL)
	if v.Authenticated || p.auth.cfg.ProbeURL == "" {
		return v
	}

	probe, ok := p.do(ctx, func() (*transport.Response, error) { return p.Session.Get(ctx, p.auth.cfg.ProbeURL) })
	if !ok || !probe.OK() {
		return v
	}
	return p.JudgePage(probe, p.auth.cfg.ProbeURL)
}

// JudgePage judges an HTML or text response with the page judge. A page
// still offering a login form is never authenticated.
func (p *Pass) JudgePage(resp *transport.Response, requested string) Verdict {
	if resp.IsJSON() {
		return p.auth.pageJudge.Judge(resp.Text())
	}
	page, err := discover.Parse(finalURL(resp, requested), resp.Body)
	if err != nil {
		return p.auth.pageJudge.Judge(resp.Text())
	}
	if _, ok := p.Discoverer().FirstLoginForm(page); ok {
		return Verdict{Evidence: "login form still present"}
	}
	return p.auth.pageJudge.Judge(page.Text())
}

// JudgeAPI judges a login API response.
func (p *Pass) JudgeAPI(resp *transport.Response) Verdict {
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Verdict{Evidence: "status " + http.StatusText(resp.StatusCode)}
	}
	v := p.auth.apiJudge.Judge(resp.Text())
	if v.Authenticated {
		v.Signal = SignalAPI
	}
	return v
}

// do runs one request and records transport failures for the pass.
func (p *Pass) do(ctx context.Context, fn func() (*transport.Response, error)) (*transport.Response, bool) {
	if ctx.Err() != nil {
		p.errs = append(p.errs, ctx.Err())
		return nil, false
	}
	resp, err := fn()
	if err != nil {
		p.errs = append(p.errs, err)
		return nil, false
	}
	p.responses++
	return resp, true
}

func finalURL(resp *transport.Response, requested string) *url.URL {
	if resp.URL != nil {
		return resp.URL
	}
	u, err := url.Parse(requested)
	if err != nil {
		return &url.URL{}
	}
	return u
}
