// Package util holds small helpers shared across the engine's packages:
// prefix-safe truncation for logging token material and URL normalization
// for issuer and audience comparison.
package util
