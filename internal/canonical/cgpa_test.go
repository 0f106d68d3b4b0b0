package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCGPA(t *testing.T) {
	valid := []struct {
		input    string
		expected string
	}{
		{"3.8/4.0", "3.8/4.0"},
		{"3.80/4", "3.80/4"},
		{" 3.8 / 4.0 ", "3.8/4.0"},
		{"9.25", "9.25"},
		{"10", "10"},
		{"0", "0"},
		{"87.5/100", "87.5/100"},
		{"a+", "A+"},
		{"first  class", "FIRST CLASS"},
		{"Distinction", "DISTINCTION"},
	}

	for _, tc := range valid {
		t.Run("Accepts "+tc.input, func(t *testing.T) {
			g, err := ParseCGPA(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, g.String())
		})
	}

	invalid := []string{
		"",
		"abc",
		"4.5/4.0",
		"11",
		"-1",
		"3.8/0",
		"3.8/200",
		"03.8",
		"3.12345",
		"1e1",
		"3,8",
		"3.8/4.0/5",
	}

	for _, input := range invalid {
		t.Run("Rejects "+input, func(t *testing.T) {
			_, err := ParseCGPA(input)
			assert.Error(t, err)
		})
	}

	t.Run("Exact decimal text is kept", func(t *testing.T) {
		g, err := ParseCGPA("3.80")
		require.NoError(t, err)
		assert.Equal(t, "3.80", g.String())
		assert.True(t, g.IsNumeric())
	})

	t.Run("Grade strings are not numeric", func(t *testing.T) {
		g, err := ParseCGPA("B+")
		require.NoError(t, err)
		assert.False(t, g.IsNumeric())
	})
}
