// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/samber/oops"
)

// TokenLength is the length of activation tokens and session ids.
const TokenLength = 64

// tokenAlphabet is the fixed alphabet tokens are drawn from.
const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// TokenGenerator produces the opaque strings used as activation tokens
// and session ids.
type TokenGenerator interface {
	// Generate returns a fresh TokenLength-character token drawn
	// uniformly from the token alphabet.
	Generate() (string, error)
}

// RandomTokenGenerator implements TokenGenerator on crypto/rand.
type RandomTokenGenerator struct{}

// NewRandomTokenGenerator creates a RandomTokenGenerator.
func NewRandomTokenGenerator() *RandomTokenGenerator {
	return &RandomTokenGenerator{}
}

// Generate returns a fresh token. Bytes are rejection-sampled so every
// alphabet character is equally likely.
func (*RandomTokenGenerator) Generate() (string, error) {
	// Largest multiple of len(tokenAlphabet) below 256; bytes at or
	// above it are discarded to avoid modulo bias.
	const limit = byte(256 - 256%len(tokenAlphabet))

	out := make([]byte, 0, TokenLength)
	buf := make([]byte, TokenLength)
	for len(out) < TokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == TokenLength {
				break
			}
		}
	}
	return string(out), nil
}

// HashToken computes the SHA-256 digest stored in place of a raw token.
// The raw value exists only in responses and notifications; lookups go
// through the digest.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
