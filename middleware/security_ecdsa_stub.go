//go:build !ecdsa_signing

package middleware

import "github.com/arcllm/arcllm"

// Default build: the optional ECDSA P-256 signing path is not compiled
// in. Requesting it is a ConfigError (checked in NewSecurity), not a
// silent fallback to HMAC.
const ecdsaSigningAvailable = false

func ecdsaSign(payload []byte, key string) (string, error) {
	return "", arcllm.NewConfigError("security", "ecdsa-p256 signing requires building with -tags ecdsa_signing")
}
