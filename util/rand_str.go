// Package util contains any functions used across the application that don't match
// any other package
package util

import (
	"math/rand/v2"
	"strings"
)

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandStr returns a random alphanumeric string of length n. Not
// cryptographic, used for request IDs and similar throwaway handles.
func RandStr(n int) string {
	var b strings.Builder
	b.Grow(n)

	for range n {
		b.WriteByte(charset[rand.IntN(len(charset))])
	}

	return b.String()
}
