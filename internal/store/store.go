// Package store holds the gorm repositories for bot configuration, rules,
// the action audit trail and message history.
package store

import (
	"errors"
	"unicode/utf8"
)

var ErrNotFound = errors.New("store: record not found")

// MaxLoggedMessageLength bounds the text kept in action log rows, in runes.
const MaxLoggedMessageLength = 1000

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
