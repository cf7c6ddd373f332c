// Package proxy implements the supervisor-side half of the proxy host
// protocol (spec §4.2): spawning the proxy host with its three pipes
// inherited at fixed descriptor numbers, relaying start/stop commands, and
// reconciling the status and log streams back into the service state
// machine and the log sink.
package proxy

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/controlfreak/cfkd/internal/constants"
	"github.com/controlfreak/cfkd/internal/domain"
	"github.com/controlfreak/cfkd/internal/proxywire"
	"github.com/controlfreak/cfkd/internal/service"
)

// Actor serializes status/log callbacks onto the controller's single
// execution context, the same contract as service.Actor.
type Actor interface {
	Submit(fn func())
}

// ServiceLookup resolves a service name to its state machine so status
// messages can be reconciled without this package depending on the
// controller package (which depends on this one).
type ServiceLookup func(name string) (*service.Service, bool)

// Sink receives relayed child output, classified the same way direct
// stdout/stderr is (§4.5). name identifies which bound service the line
// came from.
type Sink func(name string, kind domain.LogKind, stream domain.Stream, line string)

// Config is static proxy configuration (spec §3 Proxy).
type Config struct {
	Name string
	Cmd  domain.Command
	Env  map[string]string
	Auto bool
}

// Proxy manages one proxy host child and the services bound to it.
type Proxy struct {
	mu sync.Mutex

	cfg    Config
	actor  Actor
	lookup ServiceLookup
	sink   Sink

	cmd     *exec.Cmd
	pid     int
	running bool
	cmdW    io.WriteCloser

	bound map[string]struct{}

	// blacklist holds the pid of every `stopped` status until
	// ProxyBlacklistAge passes; a later `started` for the same pid removes
	// its entry. Nothing else reads it, so it does not change how status
	// messages are handled.
	blacklist map[int]time.Time

	shutdownTimer *time.Timer
}

func New(cfg Config, actor Actor, lookup ServiceLookup, sink Sink) *Proxy {
	return &Proxy{
		cfg:       cfg,
		actor:     actor,
		lookup:    lookup,
		sink:      sink,
		bound:     make(map[string]struct{}),
		blacklist: make(map[int]time.Time),
	}
}

func (p *Proxy) ProxyName() string { return p.cfg.Name }

// SetCmd updates how the proxy host itself is spawned. Only meaningful
// before the first Start (spec §3 Proxy: cmd is how to spawn the proxy
// host).
func (p *Proxy) SetCmd(cmd domain.Command) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Cmd = cmd
}

// SetEnv overlays one KEY=VALUE pair onto the proxy host's environment; an
// empty value unsets the key.
func (p *Proxy) SetEnv(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.Env == nil {
		p.cfg.Env = make(map[string]string)
	}
	if value == "" {
		delete(p.cfg.Env, key)
	} else {
		p.cfg.Env[key] = value
	}
}

// SetAuto toggles auto-lifecycle (spec §4.2 Auto-lifecycle).
func (p *Proxy) SetAuto(auto bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Auto = auto
}

func (p *Proxy) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Proxy) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *Proxy) Info() domain.ProxyInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.ProxyInfo{Name: p.cfg.Name, PID: p.pid, Running: p.running}
}

// Bind attaches a service name to this proxy, starting the proxy first if
// auto=true and this is the first bound service (§4.2 auto-lifecycle).
func (p *Proxy) Bind(name string) error {
	p.mu.Lock()
	first := len(p.bound) == 0
	p.bound[name] = struct{}{}
	p.mu.Unlock()

	if first && p.cfg.Auto {
		return p.Start()
	}
	return nil
}

func (p *Proxy) Unbind(name string) {
	p.mu.Lock()
	delete(p.bound, name)
	any := p.anyUpLocked()
	p.mu.Unlock()

	if p.cfg.Auto && !any {
		p.Shutdown()
	}
}

func (p *Proxy) anyUpLocked() bool {
	for n := range p.bound {
		if svc, ok := p.lookup(n); ok && svc.State().Up() {
			return true
		}
	}
	return false
}

// Start spawns the proxy host child with its three pipes inherited at fds
// 3/4/5 (§4.2).
func (p *Proxy) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}

	cmdR, cmdW, err := os.Pipe()
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("creating command pipe: %w", err)
	}
	statusR, statusW, err := os.Pipe()
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("creating status pipe: %w", err)
	}
	logR, logW, err := os.Pipe()
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("creating log pipe: %w", err)
	}

	var cmd *exec.Cmd
	if len(p.cfg.Cmd.Argv) > 0 {
		cmd = exec.Command(p.cfg.Cmd.Argv[0], p.cfg.Cmd.Argv[1:]...)
	} else {
		cmd = exec.Command("/bin/sh", "-c", p.cfg.Cmd.Shell)
	}
	cmd.Env = os.Environ()
	for k, v := range p.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, proxywire.Env(0, nil)...)
	cmd.ExtraFiles = []*os.File{cmdR, statusW, logW}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		cmdR.Close()
		cmdW.Close()
		statusR.Close()
		statusW.Close()
		logR.Close()
		logW.Close()
		return fmt.Errorf("starting proxy host: %w", err)
	}

	// The supervisor keeps the write end of command and the read ends of
	// status/log; the ends handed to the child are closed here once
	// inherited.
	cmdR.Close()
	statusW.Close()
	logW.Close()

	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.running = true
	p.cmdW = cmdW
	p.mu.Unlock()

	go p.readStatus(statusR)
	go p.readLog(logR)
	go p.waitExit()

	return nil
}

// RequestStart writes a `start` command for svcName (§4.2 command wire
// format).
func (p *Proxy) RequestStart(svcName string, cmd domain.Command, env map[string]string, ignoreStdout, ignoreStderr bool, tieStdinTo string, noNewSession bool) error {
	if err := p.ensureStarted(); err != nil {
		return err
	}
	p.mu.Lock()
	p.bound[svcName] = struct{}{}
	w := p.cmdW
	p.mu.Unlock()

	return proxywire.WriteCommand(w, domain.ProxyCommand{
		Command:      "start",
		Name:         svcName,
		Cmd:          cmd,
		Env:          env,
		IgnoreStdout: ignoreStdout,
		IgnoreStderr: ignoreStderr,
		TieStdinTo:   tieStdinTo,
		NoNewSession: noNewSession,
	})
}

// RequestStop writes a `stop` command for svcName.
func (p *Proxy) RequestStop(svcName string) error {
	p.mu.Lock()
	w := p.cmdW
	running := p.running
	p.mu.Unlock()
	if !running || w == nil {
		return nil
	}
	return proxywire.WriteCommand(w, domain.ProxyCommand{Command: "stop", Name: svcName})
}

// RequestKill has no dedicated wire verb: it sends another `stop`. The
// reference proxy host answers `stop` with SIGTERM only, so a proxied
// child that ignores SIGTERM is not killed by this path.
func (p *Proxy) RequestKill(svcName string) error {
	return p.RequestStop(svcName)
}

func (p *Proxy) ensureStarted() error {
	if p.Running() {
		return nil
	}
	return p.Start()
}

func (p *Proxy) readStatus(r io.Reader) {
	sr := proxywire.NewStatusReader(r)
	for {
		st, err := sr.Next()
		if err != nil {
			return
		}
		msg := st
		p.actor.Submit(func() { p.handleStatus(msg) })
	}
}

func (p *Proxy) handleStatus(st domain.ProxyStatusMsg) {
	svc, ok := p.lookup(st.Name)

	switch st.Status {
	case "started":
		p.mu.Lock()
		delete(p.blacklist, st.PID)
		p.mu.Unlock()
		if ok {
			svc.OnProxyStarted(st.PID)
		}
	case "stopped":
		if !ok {
			return
		}
		ws := syscall.WaitStatus(st.WaitStatus)
		svc.OnExit(service.ClassifyWaitStatus(ws))

		p.mu.Lock()
		p.blacklist[st.PID] = time.Now().Add(constants.ProxyBlacklistAge)
		p.pruneBlacklistLocked()
		any := p.anyUpLocked()
		p.mu.Unlock()

		if p.cfg.Auto && !any {
			p.Shutdown()
		}
	}
}

func (p *Proxy) pruneBlacklistLocked() {
	now := time.Now()
	for pid, until := range p.blacklist {
		if now.After(until) {
			delete(p.blacklist, pid)
		}
	}
}

func (p *Proxy) readLog(r io.Reader) {
	lr := proxywire.NewLogReader(r)
	for {
		line, err := lr.Next()
		if err != nil {
			return
		}
		l := line
		stream := domain.StreamStdout
		if l.Stream == domain.ProxyLogErr {
			stream = domain.StreamStderr
		}
		p.actor.Submit(func() {
			if p.sink != nil {
				p.sink(l.Name, domain.KindForStream(stream), stream, l.Payload)
			}
		})
	}
}

func (p *Proxy) waitExit() {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		return
	}
	cmd.Wait()
	p.actor.Submit(func() { p.handleCrash() })
}

// handleCrash implements "proxy crash" error handling (§7): mark every
// bound service as fail with reason "proxy stopped".
func (p *Proxy) handleCrash() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	names := make([]string, 0, len(p.bound))
	for n := range p.bound {
		names = append(names, n)
	}
	p.mu.Unlock()

	for _, n := range names {
		if svc, ok := p.lookup(n); ok && svc.State().Up() {
			svc.OnExit(service.ExitInfo{Normal: false, Reason: "proxy stopped"})
		}
	}
}

// Shutdown implements proxy shutdown (§4.2): stop every bound service,
// close the command pipe, SIGTERM the proxy, and force the bookkeeping
// after a bounded grace period if it hasn't already gone away.
func (p *Proxy) Shutdown() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	for n := range p.bound {
		proxywire.WriteCommand(p.cmdW, domain.ProxyCommand{Command: "stop", Name: n})
	}
	if p.cmdW != nil {
		p.cmdW.Close()
	}
	pid := p.pid
	p.mu.Unlock()

	if pid > 0 {
		syscall.Kill(pid, syscall.SIGTERM)
	}

	p.mu.Lock()
	p.shutdownTimer = time.AfterFunc(constants.ProxyShutdownGrace, func() {
		p.actor.Submit(p.forceDown)
	})
	p.mu.Unlock()
}

func (p *Proxy) forceDown() {
	p.handleCrash()
}
