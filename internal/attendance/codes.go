package attendance

import (
	"crypto/rand"
	"math/big"
)

const (
	codeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	joinCodeLen    = 6
	sessionCodeLen = 6

	// maxJoinCodeAttempts bounds the collision retry loop in CreateClass.
	maxJoinCodeAttempts = 8
)

// CodeGenerator returns a random code of n characters.
type CodeGenerator func(n int) (string, error)

// RandomCode draws n characters from [A-Z0-9] using crypto/rand.
func RandomCode(n int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
