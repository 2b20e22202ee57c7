package automation

import (
	"errors"
	"fmt"
	"regexp"
)

const MaxPatternLength = 500

var (
	// (a+)+  (.*)*  (\d+){2,}
	nestedQuantifier = regexp.MustCompile(`\((?:[^()\\]|\\.)*[+*}]\)[+*{]`)
	// .*.*
	repeatedWildcard = regexp.MustCompile(`(?:\.[*+]){2,}`)
	// [a-z]++  [0-9]{2}{3}
	doubledClassQuantifier = regexp.MustCompile(`\[[^\]]*\](?:[+*]|\{[0-9,]+\}){2,}`)
)

// ValidateRegex checks a rule pattern at authoring time. It rejects empty or
// overly long patterns and the shapes known for runaway matching, then
// compiles the pattern the way the engine does.
func ValidateRegex(pattern string) error {
	if pattern == "" {
		return errors.New("pattern must not be empty")
	}
	if len(pattern) > MaxPatternLength {
		return fmt.Errorf("pattern longer than %d characters", MaxPatternLength)
	}
	switch {
	case nestedQuantifier.MatchString(pattern):
		return errors.New("pattern contains nested quantifiers")
	case repeatedWildcard.MatchString(pattern):
		return errors.New("pattern repeats a greedy wildcard")
	case doubledClassQuantifier.MatchString(pattern):
		return errors.New("pattern applies two quantifiers to a character class")
	}
	if _, err := regexp.Compile("(?i)" + pattern); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	return nil
}
