package commitment

import (
	"crypto/hmac"
	"crypto/sha256"
)

// SaltLength is the byte length of per-round salts.
const SaltLength = 16

// SaltDeriver derives a per-round salt from a context string. Derivation is
// deterministic: the same context always yields the same salt, so a salt can
// be re-derived at reveal time without having been stored. The reference
// deployment stores it anyway for robustness.
type SaltDeriver interface {
	Derive(context string) []byte
}

// HMACSaltDeriver derives salts as HMAC-SHA256(key, context) truncated to
// SaltLength bytes.
type HMACSaltDeriver struct {
	key []byte
}

// NewHMACSaltDeriver creates a salt deriver keyed with the given secret.
func NewHMACSaltDeriver(key []byte) *HMACSaltDeriver {
	k := make([]byte, len(key))
	copy(k, key)
	return &HMACSaltDeriver{key: k}
}

// Derive returns the first SaltLength bytes of HMAC-SHA256(key, context).
func (d *HMACSaltDeriver) Derive(context string) []byte {
	mac := hmac.New(sha256.New, d.key)
	mac.Write([]byte(context))
	return mac.Sum(nil)[:SaltLength]
}

var _ SaltDeriver = (*HMACSaltDeriver)(nil)
