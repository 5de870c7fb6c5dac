package utils

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	// SlugLength is the public identifier length (~59 bits).
	SlugLength = 10
	// DeleteTokenLength is the secret deletion credential length (~143 bits).
	DeleteTokenLength = 24
)

const slugAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var alphabetSize = big.NewInt(int64(len(slugAlphabet)))

// RandomSlug returns n characters drawn uniformly from the 62-character alphanumeric alphabet
// using crypto/rand. There is no fallback source: a failing reader fails the call.
func RandomSlug(n int) (string, error) {
	return randomSlugFrom(rand.Reader, n)
}

func randomSlugFrom(r io.Reader, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid identifier length %d", n)
	}
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(r, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("read random source: %w", err)
		}
		out[i] = slugAlphabet[v.Int64()]
	}
	return string(out), nil
}

// IsSlugAlphabet reports whether s only uses identifier characters.
func IsSlugAlphabet(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}
