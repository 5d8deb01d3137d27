package bridge

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// shellMetacharacters could enable command injection when an untrusted value
// reaches a shell script via the environment. Newlines are already removed
// by the non-printable filter.
const shellMetacharacters = ";|&$`()<>"

// DangerousValueError reports an environment value rejected for containing
// shell metacharacters. The value itself is never echoed back.
type DangerousValueError struct {
	Field string
	Chars string
}

func (e *DangerousValueError) Error() string {
	return fmt.Sprintf("field %q contains dangerous shell characters: %s", e.Field, e.Chars)
}

// SanitizeEnvValue prepares a value for injection into an action's
// environment. Non-printable characters are stripped (space and tab stay);
// any remaining shell metacharacter rejects the value outright. Sanitization
// of the environment fails closed: one bad value blocks the whole action.
func SanitizeEnvValue(value, field string) (string, error) {
	var b strings.Builder
	for _, r := range value {
		if r == ' ' || r == '\t' || unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	sanitized := b.String()

	var found []string
	seen := map[rune]bool{}
	for _, r := range sanitized {
		if strings.ContainsRune(shellMetacharacters, r) && !seen[r] {
			seen[r] = true
			found = append(found, fmt.Sprintf("%q", r))
		}
	}
	if len(found) > 0 {
		return "", &DangerousValueError{Field: field, Chars: strings.Join(found, ", ")}
	}
	return sanitized, nil
}

// truncate caps s at max bytes without splitting a UTF-8 rune, walking
// the cut back to the nearest rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ScrubText replaces shell metacharacters with spaces. Used for long
// diagnostic payloads (review output) where rejection would lose the
// signal; scrubbing fails open.
func ScrubText(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(shellMetacharacters, r) {
			return ' '
		}
		return r
	}, s)
}
