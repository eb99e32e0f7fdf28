package party

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodeFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := generateCode()
		require.Len(t, code, CodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected character %q in %q", r, code)
		}
	}
}

func TestCodeAlphabetExcludesConfusables(t *testing.T) {
	for _, r := range "0O1I" {
		assert.False(t, strings.ContainsRune(codeAlphabet, r))
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		valid bool
	}{
		{"lowercase", "abcdef", "ABCDEF", true},
		{"mixed case", "AbCdEf", "ABCDEF", true},
		{"digits", "AB23CD", "AB23CD", true},
		{"too short", "ABCDE", "", false},
		{"too long", "ABCDEFG", "", false},
		{"empty", "", "", false},
		{"excluded zero", "ABC0EF", "", false},
		{"excluded oh", "ABCOEF", "", false},
		{"whitespace", "ABC EF", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeCode(tt.in)
			assert.Equal(t, tt.valid, ok)
			if tt.valid {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
