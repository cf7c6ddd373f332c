// Package controller implements the process-wide singleton that owns the
// three name-indexed registries (services, sockets, proxies), the log sink,
// and the single actor goroutine every mutation is funneled through (spec
// §2, §5). It implements dispatch.Target so internal/dispatch can drive it
// without either package depending on the other's internals.
package controller

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/controlfreak/cfkd/internal/constants"
	"github.com/controlfreak/cfkd/internal/domain"
	"github.com/controlfreak/cfkd/internal/logs"
	"github.com/controlfreak/cfkd/internal/proxy"
	"github.com/controlfreak/cfkd/internal/runner"
	"github.com/controlfreak/cfkd/internal/service"
	"github.com/controlfreak/cfkd/internal/socket"
)

// Version is the daemon's reported version string (`command version`).
const Version = "0.1.0"

// Controller is the supervisor's process-wide singleton.
type Controller struct {
	actor *actor
	rng   *rand.Rand

	home string

	mu       sync.RWMutex // guards the three registries against non-actor readers (httpapi)
	services map[string]*service.Service
	proxies  map[string]*proxy.Proxy
	sockets  *socket.Registry

	console domain.ConsoleConfig
	logger  domain.LoggerConfig

	sink *logs.Manager

	shuttingDown bool
	reloadFn     func() error
}

func New(home string) *Controller {
	c := &Controller{
		actor:    newActor(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		home:     home,
		services: make(map[string]*service.Service),
		proxies:  make(map[string]*proxy.Proxy),
		sockets:  socket.NewRegistry(),
		console:  domain.DefaultConsoleConfig(),
		logger:   domain.DefaultLoggerConfig(),
	}
	c.sink = logs.NewManager(logs.ManagerConfig{
		BufferSize:         constants.DefaultLogBufferSize,
		SubscriptionBuffer: constants.DefaultSubscriptionBuffer,
		MinLevel:           c.logger.Level,
	})
	return c
}

// Logs exposes the sink for the observability surface; read-only.
func (c *Controller) Logs() *logs.Manager { return c.sink }

// Console exposes the current console configuration, for cmd/cfkd to stand
// up the admin endpoint and (if configured) the HTTP surface.
func (c *Controller) Console() domain.ConsoleConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.console
}

// Home returns the supervisor's home directory (exported to children).
func (c *Controller) Home() string { return c.home }

// StopActor tears down the actor goroutine. Callers should have already
// driven a full Shutdown() through the dispatcher.
func (c *Controller) StopActor() { c.actor.stop() }

func (c *Controller) emit(name string, kind domain.LogKind, stream domain.Stream, line string) {
	c.sink.Write(domain.LogEntry{
		Timestamp: time.Now(),
		Kind:      kind,
		Process:   name,
		Stream:    stream,
		Line:      line,
	})
}

// findOrCreateService returns the named service, creating it with
// spec-mandated defaults on first mention (§4.3's `service` verb).
func (c *Controller) findOrCreateService(name string) *service.Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.services[name]; ok {
		return s
	}
	sockResolver := func(sockName string) (*os.File, bool) {
		sock, ok := c.sockets.Get(sockName)
		if !ok {
			return nil, false
		}
		f := sock.File()
		return f, f != nil
	}
	s := service.New(name, domain.DefaultServiceConfig(name), service.Deps{
		Runner:  runner.NewExecRunner(),
		Actor:   c.actor,
		Sockets: sockResolver,
		Rng:     c.rng,
		Sink: func(kind domain.LogKind, stream domain.Stream, line string) {
			c.emit(name, kind, stream, line)
		},
	})
	c.services[name] = s
	return s
}

func (c *Controller) lookupService(name string) (*service.Service, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.services[name]
	return s, ok
}

func (c *Controller) findOrCreateProxy(name string) *proxy.Proxy {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.proxies[name]; ok {
		return p
	}
	p := proxy.New(
		proxy.Config{Name: name, Auto: true},
		c.actor,
		c.lookupService,
		c.emit,
	)
	c.proxies[name] = p
	return p
}

func (c *Controller) lookupProxy(name string) (*proxy.Proxy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.proxies[name]
	return p, ok
}

// selectServices resolves a selector to a snapshot slice of services (§4.3).
func (c *Controller) selectServices(sel domain.Selector) ([]*service.Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch sel.Kind {
	case domain.SelectorAll:
		out := make([]*service.Service, 0, len(c.services))
		for _, s := range c.services {
			out = append(out, s)
		}
		return out, nil
	case domain.SelectorService:
		s, ok := c.services[sel.Value]
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrServiceNotFound, sel.Value)
		}
		return []*service.Service{s}, nil
	case domain.SelectorTag:
		out := make([]*service.Service, 0)
		for _, s := range c.services {
			if _, ok := s.Config().Tags[sel.Value]; ok {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown selector kind %q", domain.ErrInvalidPattern, sel.Kind)
	}
}
