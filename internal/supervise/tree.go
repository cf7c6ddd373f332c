// Package supervise wires the daemon's own long-running goroutines (admin
// endpoint, observability HTTP server) into a suture supervision tree
// (spec §4.7, added): a crash in one surface restarts in place instead of
// taking the whole daemon down. This is distinct from internal/service,
// which supervises the user's configured child processes.
package supervise

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds the root supervisor's failure-backoff parameters.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree supervises the daemon's surface-level services: the admin endpoint
// (always present) and the observability HTTP server (present only when
// console http_addr is configured).
type Tree struct {
	root     *suture.Supervisor
	surfaces *suture.Supervisor
}

func NewTree(logger *slog.Logger, cfg TreeConfig) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultTreeConfig()
	}

	handler := &sutureslog.Handler{Logger: logger}
	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}

	root := suture.New("cfkd", rootSpec)
	surfaces := suture.New("surfaces", childSpec)
	root.Add(surfaces)

	return &Tree{root: root, surfaces: surfaces}
}

// AddSurface adds an admin or observability listener to the tree.
func (t *Tree) AddSurface(svc suture.Service) suture.ServiceToken {
	return t.surfaces.Add(svc)
}

// Remove stops and removes a previously added service, e.g. when console
// configuration is changed at runtime via reload_config.
func (t *Tree) Remove(token suture.ServiceToken) error {
	return t.surfaces.Remove(token)
}

// Serve blocks until ctx is canceled, supervising every added surface.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
