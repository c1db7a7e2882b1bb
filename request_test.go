package oauthkit

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestRequest_Param(t *testing.T) {
	req := &Request{
		Form:  url.Values{"client_id": {"from-form"}, "scope": {"openid"}},
		Query: url.Values{"client_id": {"from-query"}, "state": {"xyz"}},
	}

	if got := req.Param("client_id"); got != "from-form" {
		t.Errorf("Param() = %q, want form value to win", got)
	}
	if got := req.Param("state"); got != "xyz" {
		t.Errorf("Param() = %q, want query fallback", got)
	}
	if got := req.Param("missing"); got != "" {
		t.Errorf("Param() = %q, want empty", got)
	}
	if got := req.FormValue("state"); got != "" {
		t.Errorf("FormValue() = %q, want empty for query-only parameter", got)
	}
}

func TestNewRequest_Form(t *testing.T) {
	body := url.Values{"grant_type": {"client_credentials"}}.Encode()
	hr := httptest.NewRequest("POST", "/oauth/token?debug=1", strings.NewReader(body))
	hr.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req := NewRequest(hr)
	if got := req.FormValue("grant_type"); got != "client_credentials" {
		t.Errorf("FormValue(grant_type) = %q", got)
	}
	if got := req.Query.Get("debug"); got != "1" {
		t.Errorf("Query.Get(debug) = %q", got)
	}
	if req.Body != nil {
		t.Error("form request should not capture a raw body")
	}
}

func TestNewRequest_JSON(t *testing.T) {
	hr := httptest.NewRequest("POST", "/oauth/register", strings.NewReader(`{"client_name":"app"}`))
	hr.Header.Set("Content-Type", "application/json")

	req := NewRequest(hr)
	if string(req.Body) != `{"client_name":"app"}` {
		t.Errorf("Body = %q", req.Body)
	}
}

func TestJSONResponse(t *testing.T) {
	resp := JSONResponse(200, ErrorResponse{Error: "invalid_request"})
	if resp.Status != 200 {
		t.Errorf("Status = %d", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if !strings.Contains(string(resp.Body), `"invalid_request"`) {
		t.Errorf("Body = %s", resp.Body)
	}
}

func TestWriteResponse(t *testing.T) {
	resp := RedirectResponse("https://client.example.com/cb?code=abc")
	w := httptest.NewRecorder()
	WriteResponse(w, resp)

	if w.Code != 302 {
		t.Errorf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "https://client.example.com/cb?code=abc" {
		t.Errorf("Location = %q", loc)
	}
}
