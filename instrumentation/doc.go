// Package instrumentation provides OpenTelemetry metrics and tracing for the
// engine.
//
// Usage:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-auth-server",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
// Available metrics:
//
// HTTP layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// Protocol flows:
//   - oauth.authorization.started{response_type}
//   - oauth.tokens.issued{grant_type}
//   - oauth.grant.errors{grant_type, error}
//   - oauth.device.polls{result}
//   - oauth.tokens.revoked{token_type}
//   - oauth.introspections{active}
//   - oauth.clients.registered{client_type}
//
// Security:
//   - oauth.rate_limit.exceeded{limiter_type}
//   - oauth.code.reuse_detected
//   - oauth.token.reuse_detected
//   - oauth.assertion.replays
//   - oauth.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.size.{clients,codes,access_tokens,refresh_tokens,device_codes}
//
// When disabled, no-op providers are installed and recording is free. All
// operations are safe for concurrent use.
package instrumentation
