// Package security provides the engine's cross-cutting protections: audit
// logging with hashed PII, rate limiting, at-rest encryption for stored
// records and clock-skew tolerant expiry checks.
//
// # Rate Limiting
//
// RateLimiter implements per-identifier token buckets with LRU eviction so
// memory stays bounded under distributed abuse:
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientID) {
//	    // rate limit exceeded
//	}
//
// GetStats exposes CurrentEntries, TotalEvictions and MemoryPressure for
// monitoring. ClientRegistrationRateLimiter is a fixed-window variant sized
// for the low-volume registration endpoint.
//
// # Audit Logging
//
// Auditor writes structured security events. User identifiers are hashed
// before they reach the log stream; event types are the Event* constants so
// log consumers can match on stable names.
//
// # Encryption
//
// Encryptor provides AES-256-GCM for encrypting token records before they
// are handed to a shared storage backend.
package security
