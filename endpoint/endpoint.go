// Package endpoint implements the protocol endpoints: authorization, token,
// introspection, revocation, userinfo, device authorization and dynamic
// client registration. Endpoints parse and validate requests, select the
// appropriate strategies, and are the only layer that renders errors onto
// the wire.
package endpoint

import (
	"net/http"

	"github.com/oauthkit/oauthkit"
)

// errorJSON renders an error as the standard JSON error body. invalid_client
// failures get a WWW-Authenticate challenge per RFC 6749 section 5.2.
func errorJSON(err error) *oauthkit.Response {
	oe := oauthkit.AsError(err)
	resp := oauthkit.JSONResponse(oe.Status, oauthkit.ErrorResponse{
		Error:            oe.Code,
		ErrorDescription: oe.Description,
	})
	if oe.Code == oauthkit.ErrorCodeInvalidClient && oe.Status == http.StatusUnauthorized {
		resp.Header.Set("WWW-Authenticate", `Basic realm="oauth", error="invalid_client"`)
	}
	return resp
}

// bearerError renders a protected resource error with a Bearer challenge
// (RFC 6750 section 3).
func bearerError(err error) *oauthkit.Response {
	oe := oauthkit.AsError(err)
	resp := oauthkit.JSONResponse(oe.Status, oauthkit.ErrorResponse{
		Error:            oe.Code,
		ErrorDescription: oe.Description,
	})
	resp.Header.Set("WWW-Authenticate", `Bearer error="`+oe.Code+`"`)
	return resp
}
