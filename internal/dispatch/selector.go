package dispatch

import (
	"fmt"

	"github.com/controlfreak/cfkd/internal/domain"
)

// parseSelector consumes a `<selector>` off the front of toks (spec §4.3:
// `service <name>`, `tag <tag>`, or `all`) and returns the selector plus the
// remaining tokens.
func parseSelector(toks []string) (domain.Selector, []string, error) {
	if len(toks) == 0 {
		return domain.Selector{}, nil, fmt.Errorf("%w: expected a selector", domain.ErrSelectorArity)
	}
	switch toks[0] {
	case "all":
		return domain.Selector{Kind: domain.SelectorAll}, toks[1:], nil
	case "service":
		if len(toks) < 2 {
			return domain.Selector{}, nil, fmt.Errorf("%w: 'service' selector requires a name", domain.ErrSelectorArity)
		}
		return domain.Selector{Kind: domain.SelectorService, Value: toks[1]}, toks[2:], nil
	case "tag":
		if len(toks) < 2 {
			return domain.Selector{}, nil, fmt.Errorf("%w: 'tag' selector requires a value", domain.ErrSelectorArity)
		}
		return domain.Selector{Kind: domain.SelectorTag, Value: toks[1]}, toks[2:], nil
	default:
		return domain.Selector{}, nil, fmt.Errorf("%w: unknown selector %q", domain.ErrInvalidPattern, toks[0])
	}
}
