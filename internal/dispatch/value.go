package dispatch

import (
	"fmt"

	"github.com/controlfreak/cfkd/internal/domain"
)

// ParseBool exports the spec's boolean vocabulary for record setters
// living outside this package (internal/controller).
func ParseBool(s string) (bool, error) {
	b, ok := parseBool(s)
	if !ok {
		return false, fmt.Errorf("%w: not a boolean: %q", domain.ErrInvalidValue, s)
	}
	return b, nil
}

// ParseInt exports integer parsing with the package's error convention.
func ParseInt(s string) (int, error) {
	n, err := parseInt(s)
	if err != nil {
		return 0, fmt.Errorf("%w: not an integer: %q", domain.ErrInvalidValue, s)
	}
	return n, nil
}

// ParseString exports single-value quote stripping.
func ParseString(s string) string {
	return unquote(s)
}

// ParseCommand implements the `cmd` attribute's sum-type grammar: a
// bracketed RHS is a structured argv, otherwise the whole (unquoted) value
// is a shell string.
func ParseCommand(s string) domain.Command {
	if vec, ok := parseVector(s); ok {
		return domain.Command{Argv: vec}
	}
	return domain.Command{Shell: unquote(s)}
}

// ParseVector exports bracketed-list parsing, e.g. for `tags=[a, b]`.
func ParseVector(s string) ([]string, bool) {
	return parseVector(s)
}
