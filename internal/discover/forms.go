package discover

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Takenobou/sfoweb-appointments/internal/model"
)

// usernameHint is matched against an input's name, id and placeholder.
var usernameHint = regexp.MustCompile(`(?i)user|login|e-?mail|bruger|unilogin|uni_?id`)

// Field is a named form value.
type Field struct {
	Name  string
	Value string
}

// Form is a candidate login form.
type Form struct {
	// ActionURL is absolute; an empty action resolves to the page URL.
	ActionURL string
	// HiddenFields keeps document order; a later duplicate name replaces the
	// earlier value in place.
	HiddenFields  []Field
	UsernameField string
	PasswordField string
	// Submit is nil when the form has no named submit control.
	Submit *Field
}

// LoginCapable reports whether the form has both a username-like and a
// password input.
func (f Form) LoginCapable() bool {
	return f.UsernameField != "" && f.PasswordField != ""
}

// Hidden returns the value of a hidden field.
func (f Form) Hidden(name string) (string, bool) {
	for _, h := range f.HiddenFields {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// Values builds the submission body: hidden fields, credentials and the
// submit control when present.
func (f Form) Values(creds model.Credentials) url.Values {
	values := url.Values{}
	for _, h := range f.HiddenFields {
		values.Set(h.Name, h.Value)
	}
	values.Set(f.UsernameField, creds.Username)
	values.Set(f.PasswordField, creds.Password)
	if f.Submit != nil {
		values.Set(f.Submit.Name, f.Submit.Value)
	}
	return values
}

// LoginForms returns every form on the page in document order. Inputs that
// sit outside any form are gathered into one implicit form when the page
// has no form elements, which covers script-driven login widgets.
func (d *Discoverer) LoginForms(p *Page) []Form {
	var forms []Form
	p.Doc.Find("form").Each(func(_ int, sel *goquery.Selection) {
		forms = append(forms, d.parseForm(p, sel))
	})
	if len(forms) == 0 {
		if body := p.Doc.Find("body"); body.Find("input").Length() > 0 {
			forms = append(forms, d.parseForm(p, body))
		}
	}
	return forms
}

// FirstLoginForm returns the first login-capable form on the page.
func (d *Discoverer) FirstLoginForm(p *Page) (Form, bool) {
	for _, f := range d.LoginForms(p) {
		if f.LoginCapable() {
			return f, true
		}
	}
	return Form{}, false
}

func (d *Discoverer) parseForm(p *Page, sel *goquery.Selection) Form {
	action, _ := sel.Attr("action")
	form := Form{}
	form.ActionURL, _ = p.Resolve(action)
	if form.ActionURL == "" {
		form.ActionURL = p.URL.String()
	}

	index := map[string]int{}
	var fallbackUser string
	sel.Find("input, button").Each(func(_ int, in *goquery.Selection) {
		kind := strings.ToLower(strings.TrimSpace(in.AttrOr("type", "")))
		name := strings.TrimSpace(in.AttrOr("name", ""))
		id := strings.TrimSpace(in.AttrOr("id", ""))
		hint := name + " " + id + " " + in.AttrOr("placeholder", "")
		value := in.AttrOr("value", "")

		if goquery.NodeName(in) == "button" {
			if (kind == "" || kind == "submit") && form.Submit == nil && name != "" {
				form.Submit = &Field{Name: name, Value: value}
			}
			return
		}

		switch kind {
		case "hidden":
			if name == "" {
				return
			}
			if i, ok := index[name]; ok {
				form.HiddenFields[i].Value = value
				return
			}
			index[name] = len(form.HiddenFields)
			form.HiddenFields = append(form.HiddenFields, Field{Name: name, Value: value})
		case "password":
			if form.PasswordField == "" {
				form.PasswordField = firstNonEmpty(name, id, "password")
			}
		case "submit", "image":
			if form.Submit == nil && name != "" {
				form.Submit = &Field{Name: name, Value: value}
			}
		case "", "text", "email":
			if form.UsernameField == "" && (kind == "email" || usernameHint.MatchString(hint)) {
				form.UsernameField = firstNonEmpty(name, id)
			}
			if fallbackUser == "" {
				fallbackUser = firstNonEmpty(name, id)
			}
		case "checkbox", "radio", "button", "reset", "file":
		default:
			if form.UsernameField == "" && usernameHint.MatchString(hint) {
				form.UsernameField = firstNonEmpty(name, id)
			}
		}
	})

	if form.UsernameField == "" {
		form.UsernameField = fallbackUser
	}
	return form
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
