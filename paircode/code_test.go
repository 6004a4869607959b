package paircode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_ProducesValidCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := Generate()
		require.NoError(t, err)
		assert.Len(t, string(code), Length)
		assert.True(t, Validate(string(code)))
	}
}

func TestGenerate_UsesOnlyAlphabetSymbols(t *testing.T) {
	code, err := Generate()
	require.NoError(t, err)

	for _, r := range string(code) {
		assert.Contains(t, Alphabet, string(r))
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid uppercase", "ABCDEF", true},
		{"valid lowercase normalizes", "abcdef", true},
		{"valid with whitespace", "  ABCDEF  ", true},
		{"too short", "ABCDE", false},
		{"too long", "ABCDEFG", false},
		{"contains excluded ambiguous char O", "ABCDEO", false},
		{"contains symbol", "ABC-EF", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Validate(tc.input))
		})
	}
}

func TestNormalize(t *testing.T) {
	code, err := Normalize(" abcdef ")
	require.NoError(t, err)
	assert.Equal(t, Code("ABCDEF"), code)

	_, err = Normalize("bad")
	assert.Error(t, err)
}

func TestAlphabet_ExcludesAmbiguousCharacters(t *testing.T) {
	for _, c := range []string{"0", "O", "1", "I"} {
		assert.False(t, strings.Contains(Alphabet, c), "alphabet should exclude %q", c)
	}
}
