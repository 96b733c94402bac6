// Package pipeline turns one line of chat input, or one interaction, into a
// sequence of executed commands whose outputs feed each other.
package pipeline

import (
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
)

// pipeDelimiter matches a pipe that is not escaped with a backslash.
var pipeDelimiter = regexp2.MustCompile(`(?<!\\)\|`, regexp2.None)

// Segment is one pipe-delimited slice of the input, before resolution.
type Segment struct {
	Raw string
	// Name is the first token of Raw with the prefix stripped when present.
	Name string
}

// Split breaks raw into segments on unescaped pipes. Escaped pipes are
// restored, every piece is trimmed, and empty pieces are kept so that
// segment indexes always match the input.
func Split(raw, prefix string) []Segment {
	runes := []rune(raw)
	var pieces []string
	start := 0
	m, _ := pipeDelimiter.FindRunesMatch(runes)
	for m != nil {
		pieces = append(pieces, string(runes[start:m.Index]))
		start = m.Index + m.Length
		m, _ = pipeDelimiter.FindNextMatch(m)
	}
	pieces = append(pieces, string(runes[start:]))

	segs := make([]Segment, 0, len(pieces))
	for _, p := range pieces {
		segs = append(segs, newSegment(strings.TrimSpace(strings.ReplaceAll(p, `\|`, "|")), prefix))
	}
	return segs
}

func newSegment(raw, prefix string) Segment {
	return Segment{Raw: raw, Name: providedName(raw, prefix)}
}

// providedName returns the first token of raw, minus prefix if it starts
// with it. Unprefixed tokens are returned as-is.
func providedName(raw, prefix string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	tok := fields[0]
	if prefix != "" && strings.HasPrefix(tok, prefix) {
		return tok[len(prefix):]
	}
	return tok
}

// joinSegments rebuilds the text of segs, separated by pipes. Pipes inside
// a segment are escaped again so that Split gives back the same segments.
func joinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		parts = append(parts, strings.ReplaceAll(s.Raw, "|", `\|`))
	}
	return strings.Join(parts, " | ")
}

// stripTokens drops the first n whitespace-delimited tokens of s and trims
// what is left, keeping inner spacing intact.
func stripTokens(s string, n int) string {
	for ; n > 0; n-- {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		end := strings.IndexFunc(s, unicode.IsSpace)
		if end < 0 {
			return ""
		}
		s = s[end:]
	}
	return strings.TrimSpace(s)
}

// withPrefix returns raw starting with prefix.
func withPrefix(raw, prefix string) string {
	if strings.HasPrefix(raw, prefix) {
		return raw
	}
	return prefix + raw
}
