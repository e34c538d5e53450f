package profiles

import (
	"regexp"
	"strings"

	"github.com/brewmap/brewmap/internal/errors"
)

var usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9._-]{2,31}$`)

// CanonicalUsername lowercases an ASCII username and checks it against
// the username policy: a letter followed by 2 to 31 letters, digits,
// dots, underscores or hyphens.
func CanonicalUsername(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.Validation("username is required")
	}

	var b strings.Builder
	b.Grow(len(input))
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if ch > 0x7f {
			return "", errors.Validation("username must be ASCII")
		}
		if ch >= 'A' && ch <= 'Z' {
			ch = ch - 'A' + 'a'
		}
		b.WriteByte(ch)
	}

	canonical := b.String()
	if !usernamePattern.MatchString(canonical) {
		return "", errors.Validation("username must start with a letter and be 3 to 32 characters of letters, digits, '.', '_' or '-'").
			WithDetails("username", input)
	}
	return canonical, nil
}
