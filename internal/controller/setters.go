package controller

import (
	"fmt"
	"time"

	"github.com/controlfreak/cfkd/internal/dispatch"
	"github.com/controlfreak/cfkd/internal/domain"
)

// SetServiceAttr implements dispatch.Target (spec §3 Service, §4.3). The
// mutation runs on the actor goroutine, same execution context as every
// state-machine transition (spec §5).
func (c *Controller) SetServiceAttr(name, attr, value string) error {
	var err error
	c.actor.run(func() { err = c.setServiceAttr(name, attr, value) })
	return err
}

func (c *Controller) setServiceAttr(name, attr, value string) error {
	svc := c.findOrCreateService(name)
	cfg := svc.Config()

	switch attr {
	case "cmd":
		cfg.Cmd = dispatch.ParseCommand(value)
	case "env":
		k, v, ok := splitKV(value)
		if !ok {
			return fmt.Errorf("%w: env expects KEY=VALUE", domain.ErrInvalidValue)
		}
		if cfg.Env == nil {
			cfg.Env = make(map[string]string)
		}
		if v == "" {
			delete(cfg.Env, k)
		} else {
			cfg.Env[k] = dispatch.ParseString(v)
		}
	case "cwd":
		cfg.Cwd = dispatch.ParseString(value)
	case "user":
		cfg.User = dispatch.ParseString(value)
	case "group":
		cfg.Group = dispatch.ParseString(value)
	case "priority":
		n, err := dispatch.ParseInt(value)
		if err != nil {
			return err
		}
		cfg.Priority = n
	case "desc":
		cfg.Desc = dispatch.ParseString(value)
	case "tags":
		tags, ok := dispatch.ParseVector(value)
		if !ok {
			tags = []string{dispatch.ParseString(value)}
		}
		cfg.Tags = make(map[string]struct{}, len(tags))
		for _, t := range tags {
			cfg.Tags[t] = struct{}{}
		}
	case "tie_stdin_to":
		cfg.TieStdinTo = dispatch.ParseString(value)
	case "ignore_stdout":
		b, err := dispatch.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.IgnoreStdout = b
	case "ignore_stderr":
		b, err := dispatch.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.IgnoreStderr = b
	case "startwait_secs":
		d, err := parseSeconds(value)
		if err != nil {
			return err
		}
		cfg.StartWait = d
	case "stopwait_secs":
		d, err := parseSeconds(value)
		if err != nil {
			return err
		}
		cfg.StopWait = d
	case "respawn_on_fail":
		b, err := dispatch.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.RespawnOnFail = b
	case "respawn_on_stop":
		b, err := dispatch.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.RespawnOnStop = b
	case "respawn_max_retries":
		n, err := dispatch.ParseInt(value)
		if err != nil {
			return err
		}
		cfg.RespawnMaxRetries = n
	case "no_new_session":
		b, err := dispatch.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.NoNewSession = b
	case "proxy":
		proxyName := dispatch.ParseString(value)
		cfg.Proxy = proxyName
		if proxyName != "" {
			p := c.findOrCreateProxy(proxyName)
			svc.BindProxy(p)
		}
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidAttribute, attr)
	}

	svc.Configure(cfg)
	return nil
}

// SetSocketAttr implements dispatch.Target (spec §3 Socket).
func (c *Controller) SetSocketAttr(name, attr, value string) error {
	var err error
	c.actor.run(func() { err = c.setSocketAttr(name, attr, value) })
	return err
}

func (c *Controller) setSocketAttr(name, attr, value string) error {
	cfg := domain.DefaultSocketConfig(name)
	if sock, ok := c.sockets.Get(name); ok {
		cfg = sock.Config()
	}

	switch attr {
	case "host":
		cfg.Host = dispatch.ParseString(value)
	case "service":
		cfg.Service = dispatch.ParseString(value)
	case "nonblocking":
		b, err := dispatch.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.NonBlocking = b
	case "listen_qsize":
		n, err := dispatch.ParseInt(value)
		if err != nil {
			return err
		}
		cfg.ListenQSize = n
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidAttribute, attr)
	}

	c.sockets.Configure(cfg)
	return nil
}

// SetProxyAttr implements dispatch.Target (spec §3 Proxy). The
// `proxy <name> service <assignment>` form attaches a freshly created
// service to this proxy by delegating to SetServiceAttr with attr=proxy.
func (c *Controller) SetProxyAttr(name, attr, value string) error {
	var err error
	c.actor.run(func() { err = c.setProxyAttr(name, attr, value) })
	return err
}

func (c *Controller) setProxyAttr(name, attr, value string) error {
	p := c.findOrCreateProxy(name)

	switch attr {
	case "cmd":
		p.SetCmd(dispatch.ParseCommand(value))
	case "env":
		k, v, ok := splitKV(value)
		if !ok {
			return fmt.Errorf("%w: env expects KEY=VALUE", domain.ErrInvalidValue)
		}
		p.SetEnv(k, v)
	case "auto":
		b, err := dispatch.ParseBool(value)
		if err != nil {
			return err
		}
		p.SetAuto(b)
	case "service":
		return c.setServiceAttr(dispatch.ParseString(value), "proxy", name)
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidAttribute, attr)
	}
	return nil
}

// SetConsoleAttr implements dispatch.Target (spec §4.4, §4.6).
func (c *Controller) SetConsoleAttr(attr, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch attr {
	case "host":
		c.console.Host = dispatch.ParseString(value)
	case "port":
		n, err := dispatch.ParseInt(value)
		if err != nil {
			return err
		}
		c.console.Port = n
	case "full":
		b, err := dispatch.ParseBool(value)
		if err != nil {
			return err
		}
		c.console.Full = b
	case "http_addr":
		c.console.HTTPAddr = dispatch.ParseString(value)
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidAttribute, attr)
	}
	return nil
}

// SetLoggerAttr implements dispatch.Target (spec §4.5).
func (c *Controller) SetLoggerAttr(attr, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch attr {
	case "buffer_size":
		n, err := dispatch.ParseInt(value)
		if err != nil {
			return err
		}
		// Recorded in the logger config only: the sink keeps the ring
		// buffer capacity it was created with.
		c.logger.BufferSize = n
	case "level":
		kind := domain.LogKind(dispatch.ParseString(value))
		c.logger.Level = kind
		c.sink.SetMinLevel(kind)
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidAttribute, attr)
	}
	return nil
}

func splitKV(s string) (key, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func parseSeconds(s string) (time.Duration, error) {
	f, err := parseFloat(s)
	if err != nil {
		return 0, fmt.Errorf("%w: not a number of seconds: %q", domain.ErrInvalidValue, s)
	}
	return time.Duration(f * float64(time.Second)), nil
}
