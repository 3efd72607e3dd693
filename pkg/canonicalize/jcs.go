// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization for deterministic hashing of tenor bundles and records.
//
// The interchange bundle (spec §4.4) and every keyed diff/hash derived
// from it must be byte-stable across processes and Go versions, so
// canonicalization is delegated to a real RFC 8785 implementation rather
// than a hand-rolled key sort.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is first marshaled with the standard library (so struct tags and
// json.Marshaler implementations are honored), then transformed into
// canonical form: object keys sorted by UTF-16 code unit, no
// insignificant whitespace, and numbers formatted per the ECMAScript
// rules RFC 8785 mandates.
func JCS(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal failed: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform failed: %w", err)
	}
	return canonical, nil
}

// JCSString is JCS with a string result.
func JCSString(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// HashBytes returns the SHA-256 hex digest of raw bytes, prefixed
// "sha256:" in the style every hash in this codebase uses.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// CanonicalHash returns HashBytes(JCS(v)).
func CanonicalHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}
