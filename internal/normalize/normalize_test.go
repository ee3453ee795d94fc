package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips numeric prefixes with space delimiter",
			in:   "1 print(x)\n2 print(y)",
			want: "print(x)\nprint(y)",
		},
		{
			name: "strips colon and pipe delimiters",
			in:   "1: def f():\n2| return 1",
			want: " def f():\n return 1",
		},
		{
			name: "indented line numbers",
			in:   "  10 x = 1\n  20 y = 2",
			want: "x = 1\ny = 2",
		},
		{
			name: "no artifacts returned unchanged",
			in:   "def f():\n    return 1",
			want: "def f():\n    return 1",
		},
		{
			name: "trailing whitespace stripped per line",
			in:   "x = 1   \ny = 2\t",
			want: "x = 1\ny = 2",
		},
		{
			name: "leading and trailing blank lines trimmed",
			in:   "\n\nx = 1\n\n\n",
			want: "x = 1",
		},
		{
			name: "internal blank lines preserved",
			in:   "x = 1\n\ny = 2",
			want: "x = 1\n\ny = 2",
		},
		{
			name: "internal indentation untouched",
			in:   "1: if x:\n2:     go()",
			want: " if x:\n     go()",
		},
		{
			name: "bare digits without delimiter kept",
			in:   "42",
			want: "42",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	inputs := []string{
		"1: print(x)\n2: print(y)",
		"print(x)",
		"",
		"\n\n  3 x\n",
		"1 2 3",
		"  10|a\n  20|b\n",
		"def f():\n    return 1  ",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}

func TestFingerprint(t *testing.T) {
	// Whitespace differences collapse to the same digest.
	a := Fingerprint("print(x)\n")
	b := Fingerprint("print( x )")
	c := Fingerprint("print(y)")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	require.Len(t, a, 64)

	// Empty code still hashes deterministically.
	assert.Equal(t, Fingerprint(""), Fingerprint("  \n\t"))
}

func TestCleanThenFingerprint_LineNumbersIgnored(t *testing.T) {
	withNumbers := "1: print(x)\n"
	without := "print(x)"
	assert.Equal(t, Fingerprint(Clean(withNumbers)), Fingerprint(Clean(without)))
}
