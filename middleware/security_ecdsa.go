//go:build ecdsa_signing

package middleware

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// ECDSA P-256 signing is only compiled in when the optional signing
// library (github.com/lestrrat-go/jwx/v2) is part of the build, selected
// via the ecdsa_signing build tag — "library not installed" is a real
// compile-time condition, not a runtime string check.
const ecdsaSigningAvailable = true

// ecdsaSign derives a deterministic P-256 key from the signing secret
// (same shape as the HMAC path: one environment-variable-sourced key, no
// external key management), signs payload with ES256 via jwx, and
// returns the hex encoding of the compact JWS that jws.Sign produces
// (protected header, payload and signature together).
func ecdsaSign(payload []byte, key string) (string, error) {
	priv := deriveP256Key(key)
	sig, err := jws.Sign(payload, jws.WithKey(jwa.ES256, priv))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// deriveP256Key is a deterministic stand-in key source; a real
// deployment should source the ECDSA private key from a proper
// key-management backend instead of a shared secret string.
func deriveP256Key(seed string) *ecdsa.PrivateKey {
	h := sha256.Sum256([]byte(seed))
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(h[:])
	d.Mod(d, curve.Params().N)
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = curve
	priv.D = d
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())
	return priv
}
