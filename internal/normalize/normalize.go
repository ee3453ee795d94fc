// Package normalize produces canonical source text and content digests for
// exact-match duplicate detection.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// lineNumber matches a leading line-number token: optional indentation, a run
// of digits, then a space, colon, or pipe delimiter. Admin panels render
// source listings with these prefixes and they must not influence hashing or
// the stored clean text.
var lineNumber = regexp.MustCompile(`^\s*\d+[ :|]`)

// Clean strips presentation artifacts from raw source text: leading
// line-number tokens per line, trailing whitespace per line, and blank lines
// at the start and end of the text. Internal indentation is preserved.
// Clean is pure and idempotent.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		// Strip to a fixpoint so Clean(Clean(x)) == Clean(x) even when the
		// remainder itself starts with digits.
		for {
			loc := lineNumber.FindStringIndex(line)
			if loc == nil {
				break
			}
			line = line[loc[1]:]
		}
		lines[i] = strings.TrimRight(line, " \t\r")
	}

	// Trim leading and trailing blank lines.
	start, end := 0, len(lines)
	for start < end && lines[start] == "" {
		start++
	}
	for end > start && lines[end-1] == "" {
		end--
	}

	return strings.Join(lines[start:end], "\n")
}

// Fingerprint computes the content digest used for equality testing: a
// sha256 over the text with all whitespace removed, hex encoded. Two
// submissions that differ only in whitespace fingerprint identically;
// anything else (comments, identifiers) keeps them distinct.
func Fingerprint(cleanCode string) string {
	var b strings.Builder
	b.Grow(len(cleanCode))
	for _, r := range cleanCode {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
		default:
			b.WriteRune(r)
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
