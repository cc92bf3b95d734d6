package auth

import (
	"fmt"
	"io"
	"net/url"

	"golang.org/x/net/html"
)

// Keycloak form ids for the login flow steps.
const (
	loginFormID = "kc-form-login"
	otpFormID   = "kc-otp-login-form"
)

// form is a parsed Keycloak HTML form.
type form struct {
	ID     string
	Action string
	Fields url.Values
}

// HasField reports whether the form contains an input with the given name.
func (f *form) HasField(name string) bool {
	_, ok := f.Fields[name]
	return ok
}

// parseForm extracts the Keycloak flow form from an HTML page.
//
// The form action is resolved against base, so relative actions work with
// test servers as well as the hosted provider.
func parseForm(r io.Reader, base *url.URL) (*form, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("could not parse login page: %v", err)
	}

	var found *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "form" {
			if id := attrValue(n, "id"); id == loginFormID || id == otpFormID {
				found = n
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)

	if found == nil {
		return nil, authErrorf("no login form found on page")
	}

	f := &form{
		ID:     attrValue(found, "id"),
		Action: attrValue(found, "action"),
		Fields: url.Values{},
	}

	collectInputs(found, f.Fields)

	if base != nil && f.Action != "" {
		action, err := url.Parse(f.Action)
		if err != nil {
			return nil, authErrorf("invalid form action %q: %v", f.Action, err)
		}
		f.Action = base.ResolveReference(action).String()
	}

	return f, nil
}

// collectInputs gathers the submit values of all input elements below n.
// For radio groups only the checked option is taken, falling back to the
// first option when none is checked.
func collectInputs(n *html.Node, fields url.Values) {
	if n.Type == html.ElementNode && n.Data == "input" {
		name := attrValue(n, "name")
		if name == "" {
			return
		}

		if attrValue(n, "type") == "radio" {
			if hasAttr(n, "checked") {
				fields.Set(name, attrValue(n, "value"))
			} else if !fields.Has(name) {
				fields.Set(name, attrValue(n, "value"))
			}
			return
		}

		fields.Set(name, attrValue(n, "value"))
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectInputs(c, fields)
	}
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

// authorizationCode extracts the authorization code from the redirect URL.
// Keycloak returns it in the fragment as response_mode=fragment is requested.
func authorizationCode(redirect string) (string, error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return "", authErrorf("invalid redirect URL %q: %v", redirect, err)
	}

	params, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return "", authErrorf("invalid redirect URL fragment %q: %v", u.Fragment, err)
	}

	code := params.Get("code")
	if code == "" {
		return "", authErrorf("authorization code not found in redirect URL fragment")
	}
	return code, nil
}
