package controller

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/controlfreak/cfkd/internal/domain"
	"github.com/controlfreak/cfkd/internal/service"
)

// Start implements dispatch.Target. Already-up services report an error per
// service (spec §4.1's "already up" guard), collected into one combined
// error if any selected service failed.
func (c *Controller) Start(sel domain.Selector) error {
	return c.forEachSelected(sel, func(s *service.Service) error {
		_, err := s.Start()
		return err
	})
}

func (c *Controller) Stop(sel domain.Selector) error {
	return c.forEachSelected(sel, func(s *service.Service) error {
		_, err := s.Stop(nil)
		return err
	})
}

func (c *Controller) Restart(sel domain.Selector) error {
	return c.forEachSelected(sel, func(s *service.Service) error {
		_, err := s.Restart()
		return err
	})
}

// Up is an idempotent start: already-up is success, not an error.
func (c *Controller) Up(sel domain.Selector) error {
	return c.forEachSelected(sel, func(s *service.Service) error {
		_, err := s.Start()
		if err == domain.ErrAlreadyUp {
			return nil
		}
		return err
	})
}

// Down is an idempotent stop: already-down is success, not an error.
func (c *Controller) Down(sel domain.Selector) error {
	return c.forEachSelected(sel, func(s *service.Service) error {
		_, err := s.Stop(nil)
		if err == domain.ErrAlreadyDown {
			return nil
		}
		return err
	})
}

// Destroy removes a service from the registry. Requires the service be
// down (spec §3 Lifecycles).
func (c *Controller) Destroy(sel domain.Selector) error {
	var err error
	c.actor.run(func() {
		var svcs []*service.Service
		svcs, err = c.selectServices(sel)
		if err != nil {
			return
		}
		for _, s := range svcs {
			if s.State().Up() {
				err = fmt.Errorf("%w: %s", domain.ErrDestroyRequiresDown, s.Name())
				return
			}
		}
		c.mu.Lock()
		for _, s := range svcs {
			delete(c.services, s.Name())
		}
		c.mu.Unlock()
	})
	return err
}

func (c *Controller) ProxyUp(name string) error {
	var err error
	c.actor.run(func() {
		p := c.findOrCreateProxy(name)
		err = p.Start()
	})
	return err
}

func (c *Controller) ProxyDown(name string) error {
	var err error
	c.actor.run(func() {
		p, ok := c.lookupProxy(name)
		if !ok {
			err = fmt.Errorf("%w: %q", domain.ErrProxyNotFound, name)
			return
		}
		p.Shutdown()
	})
	return err
}

func (c *Controller) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.services))
	for name := range c.services {
		out = append(out, name)
	}
	return out
}

// Desc implements `command desc [<selector>]` (§6 line format: name,
// comma-joined tags, desc, proxy_as_text, cmd).
func (c *Controller) Desc(sel domain.Selector) ([]string, error) {
	svcs, err := c.selectServices(sel)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(svcs))
	for _, s := range svcs {
		info := s.Info()
		cfg := s.Config()
		out = append(out, strings.Join([]string{
			info.Name,
			strings.Join(info.Tags, ","),
			info.Desc,
			info.ProxyAsText(),
			cfg.Cmd.String(),
		}, "\t"))
	}
	return out, nil
}

// Status implements `command status [<selector>]` (§6 line format: name,
// state, pid, start_time, stop_time, proxy_as_text, fail_reason,
// running_cmd).
func (c *Controller) Status(sel domain.Selector) ([]string, error) {
	svcs, err := c.selectServices(sel)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(svcs))
	for _, s := range svcs {
		info := s.Info()
		out = append(out, strings.Join([]string{
			info.Name,
			string(info.State),
			pidField(info.PID),
			timeField(info.StartTime),
			timeField(info.StopTime),
			info.ProxyAsText(),
			info.FailReason,
			info.RunningCmd,
		}, "\t"))
	}
	return out, nil
}

func (c *Controller) Pids(sel domain.Selector) ([]string, error) {
	svcs, err := c.selectServices(sel)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(svcs))
	for _, s := range svcs {
		info := s.Info()
		out = append(out, strings.Join([]string{info.Name, pidField(info.PID)}, "\t"))
	}
	return out, nil
}

// ProxyStatus implements `command proxystatus` (§6 line format: name,
// status, pid).
func (c *Controller) ProxyStatus() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.proxies))
	for name, p := range c.proxies {
		status := domain.ProxyDown
		if p.Running() {
			status = domain.ProxyUp
		}
		out = append(out, strings.Join([]string{name, string(status), pidField(p.PID())}, "\t"))
	}
	return out
}

func (c *Controller) Bind(socketName string) error {
	var err error
	c.actor.run(func() {
		sock, ok := c.sockets.Get(socketName)
		if !ok {
			err = fmt.Errorf("%w: %q", domain.ErrSocketNotFound, socketName)
			return
		}
		err = sock.Bind()
	})
	return err
}

func (c *Controller) Version() string { return Version }

// Shutdown implements process-wide shutdown (§3 Lifecycles, §6 signals):
// stop every service, shut down every proxy, unbind every socket.
func (c *Controller) Shutdown() error {
	c.actor.run(func() {
		c.shuttingDown = true
		for _, s := range c.services {
			s.Stop(nil)
		}
		for _, p := range c.proxies {
			p.Shutdown()
		}
		for _, sock := range c.sockets.All() {
			sock.Close()
		}
	})
	return nil
}

// ShuttingDown reports whether Shutdown has been requested.
func (c *Controller) ShuttingDown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shuttingDown
}

// SetReloadFunc installs the callback `command reload_config` invokes; wired
// by cmd/cfkd once the config file path is known.
func (c *Controller) SetReloadFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reloadFn = fn
}

func (c *Controller) ReloadConfig() error {
	c.mu.RLock()
	fn := c.reloadFn
	c.mu.RUnlock()
	if fn == nil {
		return fmt.Errorf("%w: no config file loaded", domain.ErrInvalidValue)
	}
	return fn()
}

// forEachSelected resolves sel and applies fn to each match on the actor
// goroutine, combining any per-service errors into one. A single failure
// keeps its original error chain (so callers can still errors.Is against
// e.g. domain.ErrAlreadyUp); multiple failures collapse into one message
// since there is no single sentinel left to preserve.
func (c *Controller) forEachSelected(sel domain.Selector, fn func(*service.Service) error) error {
	var err error
	c.actor.run(func() {
		var svcs []*service.Service
		svcs, err = c.selectServices(sel)
		if err != nil {
			return
		}
		var msgs []string
		var names []string
		var failures []error
		for _, s := range svcs {
			if e := fn(s); e != nil {
				msgs = append(msgs, s.Name()+": "+e.Error())
				names = append(names, s.Name())
				failures = append(failures, e)
			}
		}
		switch len(failures) {
		case 0:
		case 1:
			err = fmt.Errorf("%s: %w", names[0], failures[0])
		default:
			err = fmt.Errorf("%s", strings.Join(msgs, "; "))
		}
	})
	return err
}

func pidField(pid int) string {
	if pid == 0 {
		return ""
	}
	return strconv.Itoa(pid)
}

func timeField(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.Unix(), 10)
}
