package content

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxContentLength is the longest message the backend accepts, in runes.
const MaxContentLength = 4000

var (
	ErrEmptyContent   = errors.New("message cannot be empty")
	ErrContentTooLong = fmt.Errorf("message is longer than %d characters", MaxContentLength)
)

var policy = bluemonday.StrictPolicy()

// Sanitize strips every HTML tag from server supplied content and returns
// plain text suitable for a terminal. Control characters other than
// newline and tab are dropped so content cannot carry escape sequences.
func Sanitize(input string) string {
	return strings.Map(dropControl, html.UnescapeString(policy.Sanitize(input)))
}

func dropControl(r rune) rune {
	if r == '\n' || r == '\t' {
		return r
	}
	if unicode.IsControl(r) {
		return -1
	}
	return r
}

// ValidateContent checks a message before it is sent.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}
