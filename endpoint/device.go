package endpoint

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/clientauth"
	"github.com/oauthkit/oauthkit/grant"
	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

// userCodeCharset is the restricted consonant alphabet recommended by
// RFC 8628 section 6.1: no vowels, so no accidental words.
const userCodeCharset = "BCDFGHJKLMNPQRSTVWXZ"

// Device is the device authorization endpoint (RFC 8628 section 3.1). It
// hands a device code and short user code to input-constrained clients; the
// matching grant type polls the token endpoint for the outcome.
type Device struct {
	config   *oauthkit.Config
	selector *clientauth.Selector
	devices  storage.DeviceCodeStore
	auditor  *security.Auditor
	metrics  *instrumentation.Metrics

	now func() time.Time
}

// NewDevice creates the device authorization endpoint.
func NewDevice(config *oauthkit.Config, selector *clientauth.Selector, store storage.Store, auditor *security.Auditor, metrics *instrumentation.Metrics) *Device {
	return &Device{
		config:   config,
		selector: selector,
		devices:  store,
		auditor:  auditor,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (e *Device) Name() string      { return "device_authorization" }
func (e *Device) Path() string      { return "/oauth/device_authorization" }
func (e *Device) Methods() []string { return []string{http.MethodPost} }

func (e *Device) Handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	started := time.Now()
	resp := e.handle(ctx, req)
	e.metrics.RecordHTTPRequest(ctx, req.Method, e.Path(), resp.Status, float64(time.Since(started).Milliseconds()))
	return resp
}

func (e *Device) handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	client, err := e.selector.Authenticate(ctx, req)
	if err != nil {
		return errorJSON(err)
	}
	if !client.HasGrantType(grant.TypeDeviceCode) {
		return errorJSON(oauthkit.ErrUnauthorizedClient("The client is not registered for the device grant."))
	}

	scopes, err := oauthkit.AllowedScopes(client, req.FormValue("scope"))
	if err != nil {
		return errorJSON(err)
	}

	now := e.now()
	device := &storage.DeviceCode{
		DeviceCode:      grant.NewHandle(),
		UserCode:        newUserCode(),
		ClientID:        client.ID,
		Scopes:          scopes,
		VerificationURI: e.config.DeviceVerificationURI,
		Status:          storage.DeviceCodePending,
		Interval:        int(e.config.DevicePollInterval.Seconds()),
		IssuedAt:        now,
		ExpiresAt:       now.Add(e.config.DeviceCodeTTL),
	}
	if err := e.devices.SaveDeviceCode(ctx, device); err != nil {
		return errorJSON(oauthkit.ErrServerError("The device code could not be persisted."))
	}

	resp := &oauthkit.DeviceAuthorizationResponse{
		DeviceCode:      device.DeviceCode,
		UserCode:        device.UserCode,
		VerificationURI: device.VerificationURI,
		ExpiresIn:       int64(time.Until(device.ExpiresAt).Seconds()),
		Interval:        device.Interval,
	}
	if device.VerificationURI != "" {
		resp.VerificationURIComplete = device.VerificationURI + "?user_code=" + url.QueryEscape(device.UserCode)
	}
	return oauthkit.JSONResponse(http.StatusOK, resp)
}

// Approve records the resource owner's decision for the device identified by
// its user code. It backs whatever verification page the embedding
// application serves at the verification URI.
func (e *Device) Approve(ctx context.Context, userCode string, user *storage.User, approved bool) error {
	device, err := e.devices.GetDeviceCodeByUserCode(ctx, normalizeUserCode(userCode))
	if err != nil {
		return oauthkit.ErrInvalidGrant("The user code is unknown.")
	}
	if e.now().After(device.ExpiresAt) {
		return oauthkit.ErrExpiredToken("The user code has expired.")
	}
	if device.Status != storage.DeviceCodePending {
		return oauthkit.ErrInvalidGrant("The device authorization was already decided.")
	}

	if approved {
		if user == nil {
			return oauthkit.ErrInvalidRequest("Approval requires an authenticated resource owner.")
		}
		device.Status = storage.DeviceCodeAuthorized
		device.UserID = user.ID
	} else {
		device.Status = storage.DeviceCodeDenied
	}
	if err := e.devices.UpdateDeviceCode(ctx, device); err != nil {
		return oauthkit.ErrServerError("The device authorization could not be updated.")
	}

	userID := ""
	if user != nil {
		userID = user.ID
	}
	e.auditor.LogDeviceDecision(userID, device.ClientID, approved)
	return nil
}

// newUserCode produces an XXXX-XXXX code over the restricted charset,
// drawing randomness from a fresh UUID.
func newUserCode() string {
	id := uuid.New()
	code := make([]byte, 9)
	for i, j := 0, 0; i < 9; i++ {
		if i == 4 {
			code[i] = '-'
			continue
		}
		code[i] = userCodeCharset[int(id[j])%len(userCodeCharset)]
		j++
	}
	return string(code)
}

// normalizeUserCode strips the separator and upcases, forgiving the usual
// transcription slips.
func normalizeUserCode(userCode string) string {
	out := make([]byte, 0, len(userCode))
	for i := 0; i < len(userCode); i++ {
		c := userCode[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		}
	}
	// Stored codes carry the XXXX-XXXX shape.
	if len(out) == 8 {
		return string(out[:4]) + "-" + string(out[4:])
	}
	return string(out)
}
