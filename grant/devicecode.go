package grant

import (
	"context"
	"errors"
	"time"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

// DeviceCode polls a device authorization for completion (RFC 8628 section
// 3.4). The handler paces clients with slow_down, reports pending and denied
// states with their dedicated error codes, and consumes an authorized device
// code exactly once.
type DeviceCode struct {
	config  *oauthkit.Config
	devices storage.DeviceCodeStore
	users   storage.UserStore
	issuer  *Issuer
	auditor *security.Auditor

	now func() time.Time
}

// NewDeviceCode creates the device_code grant handler.
func NewDeviceCode(config *oauthkit.Config, store storage.Store, issuer *Issuer, auditor *security.Auditor) *DeviceCode {
	return &DeviceCode{
		config:  config,
		devices: store,
		users:   store,
		issuer:  issuer,
		auditor: auditor,
		now:     time.Now,
	}
}

func (g *DeviceCode) Name() string { return TypeDeviceCode }

func (g *DeviceCode) Handle(ctx context.Context, req *oauthkit.Request, client *storage.Client) (*oauthkit.TokenResponse, error) {
	handle := req.FormValue("device_code")
	if handle == "" {
		return nil, oauthkit.ErrInvalidRequest("The device_code parameter is required.")
	}

	device, err := g.devices.GetDeviceCode(ctx, handle)
	if err != nil {
		return nil, oauthkit.ErrInvalidGrant("The device code is invalid.")
	}
	if device.ClientID != client.ID {
		return nil, oauthkit.ErrInvalidGrant("The device code was issued to another client.")
	}

	now := g.now()
	if now.After(device.ExpiresAt) {
		return nil, oauthkit.ErrExpiredToken("The device code has expired.")
	}

	interval := time.Duration(device.Interval) * time.Second
	if !device.LastPolledAt.IsZero() && now.Sub(device.LastPolledAt) < interval {
		device.LastPolledAt = now
		_ = g.devices.UpdateDeviceCode(ctx, device)
		return nil, oauthkit.ErrSlowDown("Polling too frequently; increase the interval.")
	}
	device.LastPolledAt = now
	if err := g.devices.UpdateDeviceCode(ctx, device); err != nil {
		return nil, oauthkit.ErrServerError("The device code state could not be updated.")
	}

	switch device.Status {
	case storage.DeviceCodePending:
		return nil, oauthkit.ErrAuthorizationPending("The authorization request is still pending.")
	case storage.DeviceCodeDenied:
		return nil, oauthkit.ErrAccessDenied("The resource owner denied the authorization request.")
	case storage.DeviceCodeAuthorized:
		// fall through to redemption
	default:
		return nil, oauthkit.ErrServerError("The device code is in an unknown state.")
	}

	claimed, err := g.devices.AtomicClaimDeviceCode(ctx, handle)
	if errors.Is(err, storage.ErrAlreadyUsed) {
		return nil, oauthkit.ErrInvalidGrant("The device code has already been redeemed.")
	}
	if err != nil {
		return nil, oauthkit.ErrInvalidGrant("The device code is invalid.")
	}

	accessToken, err := g.issuer.IssueAccessToken(ctx, client, claimed.UserID, claimed.Scopes, TypeDeviceCode, "")
	if err != nil {
		return nil, err
	}
	var refreshToken *storage.RefreshToken
	if refreshEligible(client) {
		refreshToken, err = g.issuer.IssueRefreshToken(ctx, client, claimed.UserID, claimed.Scopes, accessToken.Token, "")
		if err != nil {
			return nil, err
		}
	}

	var idToken string
	if hasOpenIDScope(claimed.Scopes) && claimed.UserID != "" {
		user, err := g.users.GetUser(ctx, claimed.UserID)
		if err != nil {
			return nil, oauthkit.ErrServerError("The resource owner could not be resolved.")
		}
		idToken, err = g.issuer.IssueIDToken(client, user, "")
		if err != nil {
			return nil, err
		}
	}

	g.auditor.LogTokenIssued(claimed.UserID, client.ID, TypeDeviceCode, oauthkit.JoinScopes(claimed.Scopes))
	return g.issuer.TokenResponse(accessToken, refreshToken, idToken), nil
}
