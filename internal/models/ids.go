package models

import "github.com/google/uuid"

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// unbiased is the largest multiple of 36 that fits in a byte. Bytes at or
// above it are rejected so every character is equally likely.
const unbiased = 252

// RandomBase36 returns n random lowercase base-36 characters
func RandomBase36(n int) string {
	out := make([]byte, 0, n)
	for len(out) < n {
		id := uuid.New()
		for i, b := range id {
			// version and variant bits
			if i == 6 || i == 8 {
				continue
			}
			if b >= unbiased {
				continue
			}
			out = append(out, base36[int(b)%len(base36)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
