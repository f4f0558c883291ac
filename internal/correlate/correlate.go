// Package correlate ties merged event streams to resource groups by
// matching group names against free-text event messages.
//
// The default Substring matcher is deliberately loose: a group named "DB"
// also matches messages about "DB2". Token narrows that to whole names.
package correlate

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rbias/clusterpulse/internal/events"
)

// Matcher decides whether an event message concerns a resource group.
type Matcher interface {
	Matches(message, group string) bool
	Name() string
}

// Substring matches when the group name occurs anywhere in the message.
type Substring struct {
	// FoldCase compares case-insensitively, for sources whose native text
	// comparison ignores case.
	FoldCase bool
}

func (s Substring) Matches(message, group string) bool {
	if s.FoldCase {
		return strings.Contains(strings.ToLower(message), strings.ToLower(group))
	}
	return strings.Contains(message, group)
}

func (s Substring) Name() string {
	if s.FoldCase {
		return "substring-fold"
	}
	return "substring"
}

// Token matches only whole occurrences of the group name: the characters
// around the match must not be letters, digits, '-', '_' or '.'.
type Token struct{}

func (Token) Matches(message, group string) bool {
	if group == "" {
		return false
	}
	for offset := 0; offset <= len(message)-len(group); {
		idx := strings.Index(message[offset:], group)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(group)
		if boundaryBefore(message, start) && boundaryAfter(message, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(message[start:])
		offset = start + size
	}
	return false
}

func (Token) Name() string { return "token" }

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isNameRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isNameRune(r)
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.'
}

// ParseMatcher returns the matcher registered under name. An empty name
// selects the default case-sensitive substring matcher.
func ParseMatcher(name string) (Matcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "substring":
		return Substring{}, nil
	case "substring-fold":
		return Substring{FoldCase: true}, nil
	case "token":
		return Token{}, nil
	default:
		return nil, fmt.Errorf("unknown matcher %q: must be substring, substring-fold or token", name)
	}
}

// Correlate returns the timestamps of every record in stream whose message
// concerns group. Stream is newest first, so the result is too.
func Correlate(stream events.Stream, group string, m Matcher) []time.Time {
	var times []time.Time
	for _, rec := range stream {
		if m.Matches(rec.Message, group) {
			times = append(times, rec.Time)
		}
	}
	return times
}

// MostRecentOrNA returns the newest timestamp for group in stream, or NA
// when nothing matches.
func MostRecentOrNA(stream events.Stream, group string, m Matcher) Timestamp {
	// Equivalent to Correlate(...)[0] without building the slice.
	for _, rec := range stream {
		if m.Matches(rec.Message, group) {
			return At(rec.Time)
		}
	}
	return NA()
}
