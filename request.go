package oauthkit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request is the engine's abstract view of an HTTP request. Transport
// bindings (net/http, a framework, a test harness) populate it; the engine
// never touches the concrete request object.
type Request struct {
	Method     string
	Header     http.Header
	Query      url.Values
	Form       url.Values
	RemoteAddr string

	// Body is the raw request body for JSON endpoints such as client
	// registration. Form endpoints leave it nil.
	Body []byte
}

// Param returns the named parameter, preferring the form body over the query
// string. Token endpoint parameters arrive in the body; authorization
// endpoint parameters in the query.
func (r *Request) Param(name string) string {
	if r.Form != nil {
		if v := r.Form.Get(name); v != "" {
			return v
		}
	}
	if r.Query != nil {
		return r.Query.Get(name)
	}
	return ""
}

// FormValue returns a form body parameter only.
func (r *Request) FormValue(name string) string {
	if r.Form == nil {
		return ""
	}
	return r.Form.Get(name)
}

// NewRequest converts a net/http request into the engine's abstract model.
// Form bodies are parsed into Form; JSON bodies are captured raw into Body.
// Multipart bodies are not supported.
func NewRequest(r *http.Request) *Request {
	req := &Request{
		Method:     r.Method,
		Header:     r.Header,
		Query:      r.URL.Query(),
		RemoteAddr: r.RemoteAddr,
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		req.Body, _ = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		return req
	}
	_ = r.ParseForm()
	req.Form = r.PostForm
	return req
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Response is the engine's abstract HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse creates an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

// JSONResponse marshals v as the response body with the given status.
// Marshal failures degrade to a 500 server_error body rather than panicking.
func JSONResponse(status int, v any) *Response {
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "application/json;charset=UTF-8")
	resp.Header.Set("Cache-Control", "no-store")
	resp.Header.Set("Pragma", "no-cache")
	body, err := json.Marshal(v)
	if err != nil {
		resp.Status = http.StatusInternalServerError
		resp.Body = []byte(`{"error":"server_error"}`)
		return resp
	}
	resp.Body = body
	return resp
}

// RedirectResponse creates a 302 redirect to location.
func RedirectResponse(location string) *Response {
	resp := NewResponse(http.StatusFound)
	resp.Header.Set("Location", location)
	return resp
}

// WriteResponse writes an abstract response to a net/http ResponseWriter.
func WriteResponse(w http.ResponseWriter, resp *Response) {
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
