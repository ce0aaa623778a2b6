// Package token generates opaque session credentials.
//
// A token is the base58 encoding of 29 bytes: the 16 raw bytes of a UUIDv7
// followed by 13 cryptographically random bytes. The UUIDv7 prefix keeps
// token values roughly sortable by creation time at the byte level; the
// random suffix makes them infeasible to guess.
package token

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// RawLen is the pre-encoding byte length of a token value.
const RawLen = 16 + randomSuffixLen

const randomSuffixLen = 13

// New returns a fresh token value.
func New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid v7: %w", err)
	}

	raw := make([]byte, 0, RawLen)
	raw = append(raw, id[:]...)

	suffix := make([]byte, randomSuffixLen)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	raw = append(raw, suffix...)

	return base58.Encode(raw), nil
}
