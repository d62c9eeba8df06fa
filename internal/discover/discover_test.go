package discover

import (
	"net/url"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"

	"github.com/Takenobou/sfoweb-appointments/internal/model"
)

func mustPage(t *testing.T, rawURL, body string) *Page {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	p, err := Parse(u, []byte(body))
	require.NoError(t, err)
	return p
}

func TestParentLoginLinks(t *testing.T) {
	page := mustPage(t, "https://sfo-web.aula.dk/", `<html><body>
		<a href="/medarbejder">Medarbejder</a>
		<a href="/parent">Forældre</a>
		<a href="https://login.example.dk/foraeldrelogin">Log ind</a>
		<a href="/info">Information for guardians</a>
		<a href="/parent">Forældre (igen)</a>
		<a href="javascript:void(0)">Voksen</a>
	</body></html>`)

	links := New().ParentLoginLinks(page)
	assert.Equal(t, []string{
		"https://sfo-web.aula.dk/parent",
		"https://login.example.dk/foraeldrelogin",
		"https://sfo-web.aula.dk/info",
	}, links)
}

func TestParentLoginLinksMatchDecomposedText(t *testing.T) {
	decomposed := norm.NFD.String("Forældre")
	page := mustPage(t, "https://sfo-web.aula.dk/", `<a href="/p1">`+decomposed+`</a>`)
	assert.Equal(t, []string{"https://sfo-web.aula.dk/p1"}, New().ParentLoginLinks(page))
}

func TestLoginFormEmptyActionResolvesToPage(t *testing.T) {
	page := mustPage(t, "https://sfo-web.aula.dk/parent?x=1", `<form action="">
		<input name="username"><input type="password" name="password">
	</form>`)

	form, ok := New().FirstLoginForm(page)
	require.True(t, ok)
	assert.Equal(t, "https://sfo-web.aula.dk/parent?x=1", form.ActionURL)
}

func TestLoginFormFields(t *testing.T) {
	page := mustPage(t, "https://sfo-web.aula.dk/parent/", `<form action="../do-login" method="post">
		<input type="hidden" name="csrf" value="first">
		<input type="text" name="q" placeholder="search">
		<input type="email" id="mail" name="brugernavn">
		<input type="hidden" name="returnUrl" value="/aftaler">
		<input type="password" name="adgangskode">
		<input type="hidden" name="csrf" value="abc">
		<input type="checkbox" name="remember" value="1">
		<input type="submit" name="login" value="Log ind">
	</form>`)

	forms := New().LoginForms(page)
	require.Len(t, forms, 1)
	f := forms[0]

	assert.Equal(t, "https://sfo-web.aula.dk/do-login", f.ActionURL)
	assert.Equal(t, []Field{{Name: "csrf", Value: "abc"}, {Name: "returnUrl", Value: "/aftaler"}}, f.HiddenFields)
	assert.Equal(t, "brugernavn", f.UsernameField)
	assert.Equal(t, "adgangskode", f.PasswordField)
	require.NotNil(t, f.Submit)
	assert.Equal(t, Field{Name: "login", Value: "Log ind"}, *f.Submit)
	assert.True(t, f.LoginCapable())

	values := f.Values(model.Credentials{Username: "parent", Password: "secret"})
	assert.Equal(t, "abc", values.Get("csrf"))
	assert.Equal(t, "parent", values.Get("brugernavn"))
	assert.Equal(t, "secret", values.Get("adgangskode"))
	assert.Equal(t, "Log ind", values.Get("login"))
	assert.Empty(t, values.Get("remember"))
}

func TestLoginFormUsernameFromPlaceholder(t *testing.T) {
	page := mustPage(t, "https://x.dk/", `<form>
		<input type="text" name="q" placeholder="Søg">
		<input type="text" name="f1" placeholder="Brugernavn">
		<input type="password" name="f2">
	</form>`)
	f, ok := New().FirstLoginForm(page)
	require.True(t, ok)
	assert.Equal(t, "f1", f.UsernameField)
	assert.Equal(t, "f2", f.PasswordField)
}

func TestLoginFormFallsBackToFirstTextInput(t *testing.T) {
	page := mustPage(t, "https://x.dk/", `<form><input type="text" id="uid-field"><input type="password"></form>`)
	f, ok := New().FirstLoginForm(page)
	require.True(t, ok)
	assert.Equal(t, "uid-field", f.UsernameField)
	assert.Equal(t, "password", f.PasswordField)
	assert.Nil(t, f.Submit)
}

func TestLoginCapableRequiresBothFields(t *testing.T) {
	page := mustPage(t, "https://x.dk/", `
		<form action="/search"><input name="q" type="search"></form>
		<form action="/pin"><input type="password" name="pin"></form>
		<form action="/ok"><input name="login"><input type="password" name="pw"><button type="submit" name="go" value="1">Go</button></form>`)

	forms := New().LoginForms(page)
	require.Len(t, forms, 3)
	assert.False(t, forms[0].LoginCapable())
	assert.False(t, forms[1].LoginCapable())
	assert.True(t, forms[2].LoginCapable())
	assert.Equal(t, &Field{Name: "go", Value: "1"}, forms[2].Submit)

	f, ok := New().FirstLoginForm(page)
	require.True(t, ok)
	assert.Equal(t, "https://x.dk/ok", f.ActionURL)
}

func TestImplicitFormWithoutFormElement(t *testing.T) {
	page := mustPage(t, "https://x.dk/login", `<body><div id="app"><input name="username"><input type="password" name="password"></div></body>`)
	f, ok := New().FirstLoginForm(page)
	require.True(t, ok)
	assert.Equal(t, "https://x.dk/login", f.ActionURL)
}

func TestProbableEndpoints(t *testing.T) {
	page := mustPage(t, "https://sfo-web.aula.dk/login", `<html><head>
	<script src="/static/app.js"></script>
	<script>
		const cfg = { endpoint: "/api/v2/session" };
		fetch('/api/auth/login', { method: 'POST' });
		axios.post("https://auth.example.dk/token");
		var loginUrl = '/ajax/login.php';
		var x = "api";
		var again = '/api/auth/login';
		var spaced = "api login text";
	</script>
	</head></html>`)

	endpoints := New().ProbableEndpoints(page)
	assert.ElementsMatch(t, []string{
		"https://sfo-web.aula.dk/api/v2/session",
		"https://sfo-web.aula.dk/api/auth/login",
		"https://auth.example.dk/token",
		"https://sfo-web.aula.dk/ajax/login.php",
	}, endpoints)
}

func TestProbableEndpointsCapped(t *testing.T) {
	body := "<script>"
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		body += `fetch("/api/` + p + `/login");`
	}
	body += "</script>"
	page := mustPage(t, "https://x.dk/", body)

	endpoints := New().ProbableEndpoints(page)
	assert.Len(t, endpoints, 5)
	assert.Equal(t, "https://x.dk/api/a/login", endpoints[0])
}

func TestScriptEndpointsCustomPatterns(t *testing.T) {
	page := mustPage(t, "https://x.dk/aftaler", `<script>var appointmentUrl = "/api/aftaler/list";</script>`)
	got := ScriptEndpoints(page, []*regexp.Regexp{regexp.MustCompile(`appointmentUrl\s*=\s*"([^"]+)"`)}, 3)
	assert.Equal(t, []string{"https://x.dk/api/aftaler/list"}, got)
}

func TestPageText(t *testing.T) {
	page := mustPage(t, "https://x.dk/", `<body><script>var password = 1;</script><h1>Velkommen</h1>
		<p>Dine   aftaler</p></body>`)
	assert.Equal(t, "Velkommen Dine aftaler", page.Text())
}

func TestDiscover(t *testing.T) {
	page := mustPage(t, "https://x.dk/", `<a href="/parent">Forældre</a><script>fetch("/api/login")</script>`)
	res := New().Discover(page)
	assert.Equal(t, []string{"https://x.dk/parent"}, res.ParentLoginLinks)
	assert.Empty(t, res.LoginForms)
	assert.Equal(t, []string{"https://x.dk/api/login"}, res.ProbableEndpoints)
}
