package dispatch

import (
	"fmt"
	"strings"

	"github.com/controlfreak/cfkd/internal/domain"
)

// Dispatch normalizes and executes one admin-protocol line against target
// (spec §4.3). The returned string is the full response body (zero or more
// enumeration lines, each already newline-terminated, followed by either
// "OK" or "ERROR: <reason>"); it never includes the CRLF the admin
// connection layer appends per line.
func Dispatch(target Target, line string, hasPriv bool) string {
	norm := normalizeLine(line)
	if norm == "" {
		return "ERROR: command is void"
	}

	toks := fields(norm)
	verb := toks[0]
	rest := toks[1:]

	var out []string
	var err error

	switch verb {
	case "service":
		err = dispatchRecordAttr(rest, hasPriv, func(name, attr, val string) error {
			return target.SetServiceAttr(name, attr, val)
		})
	case "socket":
		err = dispatchRecordAttr(rest, hasPriv, func(name, attr, val string) error {
			return target.SetSocketAttr(name, attr, val)
		})
	case "proxy":
		err = dispatchRecordAttr(rest, hasPriv, func(name, attr, val string) error {
			return target.SetProxyAttr(name, attr, val)
		})
	case "console":
		err = dispatchBareAttr(rest, hasPriv, target.SetConsoleAttr)
	case "logger":
		err = dispatchBareAttr(rest, hasPriv, target.SetLoggerAttr)
	case "command":
		out, err = dispatchCommand(target, rest)
	default:
		err = fmt.Errorf("%w: unknown verb %q", domain.ErrInvalidValue, verb)
	}

	if err != nil {
		return "ERROR: " + errReason(err)
	}
	var b strings.Builder
	for _, l := range out {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("OK")
	return b.String()
}

func errReason(err error) string {
	return err.Error()
}

// dispatchRecordAttr handles `<verb> <name> <attr>=<value>` lines (service,
// socket, proxy).
func dispatchRecordAttr(toks []string, hasPriv bool, set func(name, attr, val string) error) error {
	if !hasPriv {
		return domain.ErrInsufficientPriv
	}
	if len(toks) < 2 {
		return fmt.Errorf("%w: expected <name> <attr>=<value>", domain.ErrSelectorArity)
	}
	name := toks[0]
	if !isValidIdentifier(name) {
		return domain.ErrInvalidName
	}
	rhs := strings.Join(toks[1:], " ")
	attr, val, ok := splitAttr(rhs)
	if !ok {
		// spec §4.3 also documents a space-delimited form for some
		// attributes, e.g. `proxy <name> service <service-assignment>`.
		if len(toks) < 3 {
			return fmt.Errorf("%w: expected <attr>=<value>", domain.ErrInvalidAttribute)
		}
		attr, val = toks[1], strings.Join(toks[2:], " ")
	}
	return set(name, strings.TrimSpace(attr), val)
}

// dispatchBareAttr handles `<verb> <attr>=<value>` lines with no record
// name (console, logger).
func dispatchBareAttr(toks []string, hasPriv bool, set func(attr, val string) error) error {
	if !hasPriv {
		return domain.ErrInsufficientPriv
	}
	if len(toks) < 1 {
		return fmt.Errorf("%w: expected <attr>=<value>", domain.ErrSelectorArity)
	}
	rhs := strings.Join(toks, " ")
	attr, val, ok := splitAttr(rhs)
	if !ok {
		return fmt.Errorf("%w: expected <attr>=<value>", domain.ErrInvalidAttribute)
	}
	return set(strings.TrimSpace(attr), val)
}

func dispatchCommand(target Target, toks []string) ([]string, error) {
	if len(toks) == 0 {
		return nil, fmt.Errorf("%w: command requires a verb", domain.ErrSelectorArity)
	}
	verb, args := toks[0], toks[1:]

	switch verb {
	case "start":
		return nil, withSelector(args, target.Start)
	case "stop":
		return nil, withSelector(args, target.Stop)
	case "restart":
		return nil, withSelector(args, target.Restart)
	case "up":
		return nil, withSelector(args, target.Up)
	case "down":
		return nil, withSelector(args, target.Down)
	case "destroy":
		return nil, withSelector(args, target.Destroy)
	case "proxyup":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: proxyup requires a proxy name", domain.ErrSelectorArity)
		}
		return nil, target.ProxyUp(args[0])
	case "proxydown":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: proxydown requires a proxy name", domain.ErrSelectorArity)
		}
		return nil, target.ProxyDown(args[0])
	case "list":
		return target.List(), nil
	case "desc":
		sel, err := optionalSelectorOrAll(args)
		if err != nil {
			return nil, err
		}
		return target.Desc(sel)
	case "status":
		sel, err := optionalSelectorOrAll(args)
		if err != nil {
			return nil, err
		}
		return target.Status(sel)
	case "pids":
		sel, err := optionalSelectorOrAll(args)
		if err != nil {
			return nil, err
		}
		return target.Pids(sel)
	case "proxystatus":
		return target.ProxyStatus(), nil
	case "bind":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: bind requires a socket name", domain.ErrSelectorArity)
		}
		return nil, target.Bind(args[0])
	case "version":
		return []string{target.Version()}, nil
	case "shutdown":
		return nil, target.Shutdown()
	case "reload_config":
		return nil, target.ReloadConfig()
	default:
		return nil, fmt.Errorf("%w: unknown command verb %q", domain.ErrInvalidValue, verb)
	}
}

func withSelector(args []string, fn func(domain.Selector) error) error {
	sel, rest, err := parseSelector(args)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: unexpected trailing arguments", domain.ErrSelectorArity)
	}
	return fn(sel)
}

// optionalSelectorOrAll implements `desc|status|pids [<selector>]`: an
// absent selector means "all".
func optionalSelectorOrAll(args []string) (domain.Selector, error) {
	if len(args) == 0 {
		return domain.Selector{Kind: domain.SelectorAll}, nil
	}
	sel, rest, err := parseSelector(args)
	if err != nil {
		return domain.Selector{}, err
	}
	if len(rest) != 0 {
		return domain.Selector{}, fmt.Errorf("%w: unexpected trailing arguments", domain.ErrSelectorArity)
	}
	return sel, nil
}
