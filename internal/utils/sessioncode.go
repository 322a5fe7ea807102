package utils

import (
	"crypto/rand" // secure random selection of code characters
	"math/big"
)

// RandomCode draws length characters from alphabet using crypto/rand.
// Codes are read aloud and typed on phones, so the default alphabet
// excludes visually ambiguous characters; callers enforce uniqueness
// against the store and retry on collision.
func RandomCode(alphabet string, length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}
