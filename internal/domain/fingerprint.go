package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint is the hex BLAKE2b-256 digest of a model's canonical JSON
type Fingerprint string

// Short returns the first 12 hex characters for logs and UI badges
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}

// FingerprintOf hashes the canonical serialization of the model
func FingerprintOf(m *ValleyModel) (Fingerprint, error) {
	if m == nil {
		return "", fmt.Errorf("fingerprint of nil model")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("canonicalize model: %w", err)
	}
	return FingerprintBytes(data), nil
}

// FingerprintBytes hashes already-canonical bytes
func FingerprintBytes(canonical []byte) Fingerprint {
	sum := blake2b.Sum256(canonical)
	return Fingerprint(hex.EncodeToString(sum[:]))
}
