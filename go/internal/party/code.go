package party

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// codeAlphabet excludes visually confusable characters (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the fixed length of a party code.
const CodeLength = 6

// generateCode returns a random party code. Collision checking against
// live parties is the caller's job.
func generateCode() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(codeAlphabet[randomIndex(len(codeAlphabet))])
	}
	return b.String()
}

// randomIndex returns a cryptographically secure random index in [0, max).
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		// crypto/rand only fails if the OS entropy source is broken.
		panic(err)
	}
	return int(n.Int64())
}

// NormalizeCode uppercases a code and reports whether it is well formed.
// Malformed codes are treated as not-found by the registry rather than
// rejected with a distinct error.
func NormalizeCode(code string) (string, bool) {
	if len(code) != CodeLength {
		return "", false
	}
	code = strings.ToUpper(code)
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return "", false
		}
	}
	return code, true
}
