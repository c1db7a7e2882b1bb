// Package responsemode implements the authorization response delivery modes:
// query, fragment, form_post, and their JWT-secured (JARM) variants. A mode
// places a flat parameter set into a redirect or form-post response;
// parameters with empty values are always dropped before encoding.
package responsemode

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sort"

	"github.com/oauthkit/oauthkit"
)

// Mode name constants, matching the response_mode request parameter values.
const (
	ModeQuery       = "query"
	ModeFragment    = "fragment"
	ModeFormPost    = "form_post"
	ModeJWT         = "jwt"
	ModeQueryJWT    = "query.jwt"
	ModeFragmentJWT = "fragment.jwt"
	ModeFormPostJWT = "form_post.jwt"
)

// Registry maps response_mode names to implementations.
type Registry struct {
	modes map[string]oauthkit.ResponseMode
}

// NewRegistry creates a registry over the given modes.
func NewRegistry(modes ...oauthkit.ResponseMode) *Registry {
	r := &Registry{modes: make(map[string]oauthkit.ResponseMode, len(modes))}
	for _, m := range modes {
		r.modes[m.Name()] = m
	}
	return r
}

// Get returns the mode registered under name, or nil.
func (r *Registry) Get(name string) oauthkit.ResponseMode {
	return r.modes[name]
}

// Resolve picks the response mode for a request: the explicitly requested
// mode if registered, otherwise the response type's default. The bare "jwt"
// mode resolves to the JWT variant of the default mode per JARM section 2.4.
func (r *Registry) Resolve(requested, defaultMode string) (oauthkit.ResponseMode, error) {
	name := requested
	switch name {
	case "":
		name = defaultMode
	case ModeJWT:
		name = defaultMode + ".jwt"
	}
	mode := r.modes[name]
	if mode == nil {
		return nil, oauthkit.ErrInvalidRequest(fmt.Sprintf("Unsupported response_mode %q.", requested))
	}
	return mode, nil
}

// dropEmpty removes parameters with empty values.
func dropEmpty(params map[string]string) map[string]string {
	cleaned := make(map[string]string, len(params))
	for k, v := range params {
		if v != "" {
			cleaned[k] = v
		}
	}
	return cleaned
}

// Query delivers parameters in the redirect URI query string.
type Query struct{}

func (Query) Name() string { return ModeQuery }

func (Query) Render(redirectURI string, params map[string]string) (*oauthkit.Response, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, oauthkit.ErrServerError("The redirect URI could not be parsed.")
	}
	q := u.Query()
	for k, v := range dropEmpty(params) {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return oauthkit.RedirectResponse(u.String()), nil
}

// Fragment delivers parameters in the redirect URI fragment.
type Fragment struct{}

func (Fragment) Name() string { return ModeFragment }

func (Fragment) Render(redirectURI string, params map[string]string) (*oauthkit.Response, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, oauthkit.ErrServerError("The redirect URI could not be parsed.")
	}
	values := url.Values{}
	for k, v := range dropEmpty(params) {
		values.Set(k, v)
	}
	u.Fragment = ""
	location := u.String() + "#" + values.Encode()
	return oauthkit.RedirectResponse(location), nil
}

// formPostTemplate renders the auto-submitting document of the form_post
// mode (OAuth 2.0 Form Post Response Mode section 2).
var formPostTemplate = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head><title>Submit This Form</title></head>
<body onload="javascript:document.forms[0].submit()">
<form method="post" action="{{ .RedirectURI }}">
{{- range .Fields }}
<input type="hidden" name="{{ .Name }}" value="{{ .Value }}"/>
{{- end }}
</form>
</body>
</html>
`))

// FormPost delivers parameters as hidden fields in an auto-submitting HTML
// form, returned with status 200.
type FormPost struct{}

func (FormPost) Name() string { return ModeFormPost }

type formField struct {
	Name  string
	Value string
}

func (FormPost) Render(redirectURI string, params map[string]string) (*oauthkit.Response, error) {
	cleaned := dropEmpty(params)
	fields := make([]formField, 0, len(cleaned))
	for k, v := range cleaned {
		fields = append(fields, formField{Name: k, Value: v})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	var buf bytes.Buffer
	err := formPostTemplate.Execute(&buf, struct {
		RedirectURI string
		Fields      []formField
	}{RedirectURI: redirectURI, Fields: fields})
	if err != nil {
		return nil, oauthkit.ErrServerError("The form_post document could not be rendered.")
	}

	resp := oauthkit.NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", "text/html;charset=UTF-8")
	resp.Header.Set("Cache-Control", "no-store")
	resp.Body = buf.Bytes()
	return resp, nil
}
