// Package config loads the daemon's configuration file: one admin command
// per line (spec §6), not YAML. Every line is fed to internal/dispatch
// with has_priv=true, the same way a privileged admin connection would
// drive the controller, except `logger ...` lines are applied before
// everything else regardless of where they appear in the file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/controlfreak/cfkd/internal/dispatch"
	"github.com/controlfreak/cfkd/internal/domain"
)

// Load reads path, applies `${BASE}` substitution, and feeds every
// non-comment, non-blank line to dispatch.Dispatch against target. logger
// lines run first, in file order, followed by every other line in file
// order (§6).
func Load(path, base string, target dispatch.Target) error {
	if err := CheckFilePermissions(path); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return Apply(string(data), base, target)
}

// Apply runs the line-grammar loader over in-memory config text; Load's
// file-reading wrapped around this so tests can exercise the grammar
// without a filesystem.
func Apply(text, base string, target dispatch.Target) error {
	var loggerLines, rest []string

	for _, raw := range strings.Split(text, "\n") {
		line := substituteBase(raw, base)
		trimmed := strings.TrimSpace(stripComment(line))
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "logger ") || trimmed == "logger" {
			loggerLines = append(loggerLines, trimmed)
		} else {
			rest = append(rest, trimmed)
		}
	}

	var errs []string
	for _, line := range append(loggerLines, rest...) {
		if resp := dispatch.Dispatch(target, line, true); strings.HasPrefix(resp, "ERROR:") {
			errs = append(errs, fmt.Sprintf("%q: %s", line, strings.TrimPrefix(resp, "ERROR: ")))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

func substituteBase(line, base string) string {
	return strings.ReplaceAll(line, "${BASE}", base)
}
