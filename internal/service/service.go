// Package service implements the per-service state machine (spec §4.1):
// spawn, the startwait/stopwait/backoff/restart-poll timers, exit
// classification, and the restart/respawn policy. A Service's methods are
// not internally synchronized - the single-threaded event loop described in
// spec §5 is the only caller, realized here as the Actor onto which every
// timer firing and background-goroutine result is resubmitted before it
// touches service state.
package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/controlfreak/cfkd/internal/constants"
	"github.com/controlfreak/cfkd/internal/domain"
	"github.com/controlfreak/cfkd/internal/runner"
)

// Actor serializes callbacks onto the controller's single execution
// context so concurrent timer fires and pipe reads never race with command
// dispatch (spec §5).
type Actor interface {
	Submit(fn func())
}

// ProxyBinder is the supervisor-side handle a proxy-bound service uses
// instead of spawning directly (spec §4.2's supervisor-side binding).
type ProxyBinder interface {
	ProxyName() string
	Running() bool
	RequestStart(svcName string, cmd domain.Command, env map[string]string, ignoreStdout, ignoreStderr bool, tieStdinTo string, noNewSession bool) error
	RequestStop(svcName string) error
	RequestKill(svcName string) error
}

// SocketResolver resolves a tie_stdin_to name to its bound descriptor.
type SocketResolver func(name string) (*os.File, bool)

// Deps are a Service's external collaborators.
type Deps struct {
	Runner   runner.ProcessRunner
	Proxy    ProxyBinder // nil unless the service has a proxy configured
	Actor    Actor
	Sink     func(kind domain.LogKind, stream domain.Stream, line string)
	Sockets  SocketResolver
	Rng      *rand.Rand
}

// Service is one managed program.
type Service struct {
	mu sync.Mutex // guards only Info()'s snapshot read against the actor goroutine

	name string
	cfg  domain.ServiceConfig
	deps Deps

	state        domain.ServiceState
	pid          int
	proc         runner.Process
	startTime    time.Time
	stopTime     time.Time
	failReason   string
	backoffRetry int
	wantsDown    bool
	normalExit   bool
	runningCmd   string

	restartPollCount int

	onStopCbs []func()

	sw, stw, bo, rp timerSlot

	// generation guards the background Wait() goroutine: a new spawn
	// invalidates any in-flight exit notification from a previous instance.
	generation int
}

type timerSlot struct {
	timer *time.Timer
	gen   int
}

// New creates a Service in the initial `stopped` state (spec §4.1).
func New(name string, cfg domain.ServiceConfig, deps Deps) *Service {
	if deps.Rng == nil {
		deps.Rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		name:  name,
		cfg:   cfg,
		deps:  deps,
		state: domain.ServiceStopped,
	}
}

func (s *Service) Name() string { return s.name }

// Configure overlays a new configuration. It may be called in any state: a
// running child keeps the command it was spawned with, and the new settings
// apply from the next spawn and to timers armed after the call.
func (s *Service) Configure(cfg domain.ServiceConfig) { s.cfg = cfg }

func (s *Service) Config() domain.ServiceConfig { return s.cfg }

// BindProxy attaches (or replaces) the proxy this service spawns through.
// Only valid while the service is down; nothing here enforces that.
func (s *Service) BindProxy(p ProxyBinder) { s.deps.Proxy = p }

func (s *Service) State() domain.ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a read-only snapshot for the status/desc admin commands and
// the observability surface.
func (s *Service) Info() domain.ServiceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := domain.ServiceInfo{
		Name:         s.name,
		State:        s.state,
		PID:          s.pid,
		StartTime:    s.startTime,
		StopTime:     s.stopTime,
		Proxy:        s.cfg.Proxy,
		FailReason:   s.failReason,
		RunningCmd:   s.runningCmd,
		BackoffRetry: s.backoffRetry,
		Desc:         s.cfg.Desc,
	}
	if s.deps.Proxy != nil {
		info.ProxyRunning = s.deps.Proxy.Running()
	}
	for t := range s.cfg.Tags {
		info.Tags = append(info.Tags, t)
	}
	return info
}

func (s *Service) setState(st domain.ServiceState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// ---- commands ----

// Start implements the `start` transition (spec §4.1).
func (s *Service) Start() (string, error) {
	if s.State().Up() {
		return "", domain.ErrAlreadyUp
	}
	return s.doStart(false)
}

func (s *Service) doStart(fromBackoff bool) (string, error) {
	if s.cfg.Cmd.Empty() {
		return "", fmt.Errorf("%w: cmd not set", domain.ErrInvalidValue)
	}

	s.wantsDown = false
	s.normalExit = false
	if !fromBackoff {
		s.backoffRetry = 0
	}
	s.cancelTimer(&s.bo)
	s.cancelTimer(&s.rp)

	s.startTime = time.Now()
	s.stopTime = time.Time{}
	s.failReason = ""
	s.runningCmd = s.cfg.Cmd.String()
	s.setState(domain.ServiceStarting)
	s.generation++
	gen := s.generation

	if s.cfg.Proxy != "" && s.deps.Proxy != nil {
		if err := s.deps.Proxy.RequestStart(s.name, s.cfg.Cmd, s.injectedEnv(), s.cfg.IgnoreStdout, s.cfg.IgnoreStderr, s.cfg.TieStdinTo, s.cfg.NoNewSession); err != nil {
			s.setState(domain.ServiceFail)
			s.failReason = err.Error()
			return "", err
		}
		s.pid = 0
	} else {
		proc, err := s.spawnDirect()
		if err != nil {
			s.setState(domain.ServiceFail)
			s.failReason = err.Error()
			return "", err
		}
		s.proc = proc
		s.pid = proc.PID()
		go s.waitForExit(proc, gen)
	}

	s.armTimer(&s.sw, s.cfg.StartWait, s.onStartWaitFired)
	return "started", nil
}

func (s *Service) injectedEnv() map[string]string {
	env := make(map[string]string, len(s.cfg.Env)+2)
	for k, v := range s.cfg.Env {
		env[k] = v
	}
	env["CONTROL_FREAK_ENABLED"] = "1"
	env["CONTROL_FREAK_SERVICE"] = s.name
	return env
}

func (s *Service) spawnDirect() (runner.Process, error) {
	spec := runner.Spec{
		Name:         s.name,
		Argv:         s.cfg.Cmd.Argv,
		Shell:        s.cfg.Cmd.Shell,
		Env:          s.injectedEnv(),
		Cwd:          s.cfg.Cwd,
		NoNewSession: s.cfg.NoNewSession,
		IgnoreStdout: s.cfg.IgnoreStdout,
		IgnoreStderr: s.cfg.IgnoreStderr,
	}
	if s.cfg.TieStdinTo != "" && s.deps.Sockets != nil {
		if f, ok := s.deps.Sockets(s.cfg.TieStdinTo); ok {
			spec.Stdin = f
		}
	}

	proc, err := s.deps.Runner.Start(context.Background(), spec)
	if err != nil {
		return nil, err
	}

	if !spec.IgnoreStdout {
		go s.pump(proc.Stdout(), domain.StreamStdout)
	}
	if !spec.IgnoreStderr {
		go s.pump(proc.Stderr(), domain.StreamStderr)
	}
	return proc, nil
}

// Stop implements the `stop` transition (spec §4.1). cb, if non-nil, is
// invoked once the service reaches a down state.
func (s *Service) Stop(cb func()) (string, error) {
	st := s.State()

	if st == domain.ServiceBackoff {
		s.cancelTimer(&s.bo)
		s.backoffRetry = 0
		s.wantsDown = true
		s.setState(domain.ServiceStopped)
		if cb != nil {
			cb()
		}
		return "stopped", nil
	}

	if st.Down() {
		return "", domain.ErrAlreadyDown
	}

	if cb != nil {
		s.onStopCbs = append(s.onStopCbs, cb)
	}

	if st == domain.ServiceStopping {
		return "stopping", nil
	}

	s.wantsDown = true
	if err := s.signal(runner.SigTerm); err != nil {
		s.emitLog(domain.LogError, domain.StreamStderr, "SIGTERM failed: "+err.Error())
	}
	s.setState(domain.ServiceStopping)
	s.armTimer(&s.stw, s.cfg.StopWait, s.onStopWaitFired)
	return "stopping", nil
}

func (s *Service) signal(sig os.Signal) error {
	if s.cfg.Proxy != "" && s.deps.Proxy != nil {
		if sig == runner.SigKill {
			return s.deps.Proxy.RequestKill(s.name)
		}
		return s.deps.Proxy.RequestStop(s.name)
	}
	if s.proc == nil {
		return nil
	}
	return s.proc.Signal(sig)
}

// Restart implements the `restart` transition (spec §4.1): equivalent to
// stop followed by start once the service reaches down, polled at
// stopwait/10 up to 150 tries.
func (s *Service) Restart() (string, error) {
	st := s.State()

	if st.Down() {
		if st == domain.ServiceStopped {
			return "", domain.ErrNotRunning
		}
		return s.doStart(false)
	}

	if _, err := s.Stop(nil); err != nil && err != domain.ErrAlreadyDown {
		return "", err
	}
	s.restartPollCount = 0
	s.armRestartPoll()
	return "restarting", nil
}

func (s *Service) armRestartPoll() {
	period := s.cfg.StopWait / 10
	if period <= 0 {
		period = 100 * time.Millisecond
	}
	s.armTimer(&s.rp, period, s.onRestartPollFired)
}

func (s *Service) onRestartPollFired() {
	if s.State().Down() {
		s.doStart(false)
		return
	}
	s.restartPollCount++
	if s.restartPollCount >= 150 {
		s.emitLog(domain.LogError, domain.StreamStderr, "restart failed: service never reached down")
		s.cancelTimer(&s.rp)
		return
	}
	s.armRestartPoll()
}

// HasStopped handles the external has_stopped(reason) event (§4.1 last row).
func (s *Service) HasStopped(reason string) {
	if s.State() != domain.ServiceStopped {
		return
	}
	s.setState(domain.ServiceFail)
	s.failReason = reason
	s.pid = 0
	s.proc = nil
}

// ---- timer callbacks ----

func (s *Service) onStartWaitFired() {
	if s.State() != domain.ServiceStarting {
		return
	}
	if s.pid != 0 {
		s.setState(domain.ServiceRunning)
		s.backoffRetry = 0
		return
	}
	if s.cfg.Proxy != "" {
		s.emitLog(domain.LogWarn, domain.StreamStderr, "startwait elapsed with no pid from proxy - consider increasing startwait_secs")
		return
	}
	s.setState(domain.ServiceFail)
	s.failReason = "internal error: no pid after startwait"
}

func (s *Service) onStopWaitFired() {
	if s.State() != domain.ServiceStopping {
		return
	}
	s.emitLog(domain.LogWarn, domain.StreamStdout, "stopwait elapsed, sending SIGKILL")
	if err := s.signal(runner.SigKill); err != nil {
		s.emitLog(domain.LogError, domain.StreamStderr, "SIGKILL failed: "+err.Error())
	}
}

func (s *Service) onBackoffFired() {
	if s.State() != domain.ServiceBackoff {
		return
	}
	s.doStart(true)
}

// ---- exit handling ----

// OnExit is called (via the Actor) when the child's wait() completes, for
// the direct-spawn path, or when the proxy reports `stopped`, for the
// proxy-bound path.
func (s *Service) OnExit(info ExitInfo) {
	st := s.State()
	if !st.Up() {
		return
	}

	s.cancelTimer(&s.sw)
	s.cancelTimer(&s.stw)

	wasStopping := st == domain.ServiceStopping
	s.pid = 0
	s.proc = nil

	if info.Normal {
		s.transitionToStoppedNormal()
		return
	}

	if wasStopping {
		s.setState(domain.ServiceFail)
		s.failReason = info.Reason
		s.runOnStop()
		return
	}

	if !s.cfg.RespawnOnFail || s.wantsDown {
		s.setState(domain.ServiceFail)
		s.failReason = info.Reason
		s.runOnStop()
		return
	}

	if st == domain.ServiceStarting {
		s.backoffRetry++
		if s.backoffRetry >= s.cfg.RespawnMaxRetries {
			s.setState(domain.ServiceFatal)
			s.failReason = info.Reason
			s.runOnStop()
			return
		}
		s.setState(domain.ServiceBackoff)
		s.armTimer(&s.bo, BackoffDelay(s.backoffRetry, s.deps.Rng), s.onBackoffFired)
		return
	}

	// running, abnormal, respawn_on_fail, not wants_down: fail then restart.
	s.setState(domain.ServiceFail)
	s.failReason = info.Reason
	s.runOnStop()
	s.doStart(false)
}

func (s *Service) transitionToStoppedNormal() {
	s.setState(domain.ServiceStopped)
	s.stopTime = time.Now()
	s.normalExit = true
	s.runOnStop()

	if s.cfg.RespawnOnStop && !s.wantsDown {
		s.doStart(false)
	}
}

func (s *Service) runOnStop() {
	cbs := s.onStopCbs
	s.onStopCbs = nil
	for _, cb := range cbs {
		cb()
	}
}

// ---- proxy reconciliation ----

// OnProxyStarted assigns the pid learned from the proxy's `started`
// message. The startwait timer race is resolved as specified: whichever of
// the timer firing or this call arrives first is authoritative.
func (s *Service) OnProxyStarted(pid int) {
	if s.State() != domain.ServiceStarting {
		return
	}
	s.pid = pid
	s.armTimer(&s.sw, s.cfg.StartWait, s.onStartWaitFired)
}

// ---- io pumping ----

func (s *Service) pump(r io.Reader, stream domain.Stream) {
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, constants.ScannerBufferSize), constants.ScannerMaxBufferSize)
	for scanner.Scan() {
		s.emitLog(domain.KindForStream(stream), stream, scanner.Text())
	}
}

func (s *Service) emitLog(kind domain.LogKind, stream domain.Stream, line string) {
	if s.deps.Sink == nil {
		return
	}
	s.deps.Actor.Submit(func() {
		s.deps.Sink(kind, stream, line)
	})
}

func (s *Service) waitForExit(proc runner.Process, gen int) {
	err := proc.Wait()
	info := classifyProcessExit(err)
	s.deps.Actor.Submit(func() {
		if s.generation != gen {
			return
		}
		s.OnExit(info)
	})
}

func classifyProcessExit(err error) ExitInfo {
	type sysErr interface{ Sys() interface{} }
	if err == nil {
		return ExitInfo{Normal: true}
	}
	if se, ok := err.(sysErr); ok {
		if ws, ok := se.Sys().(syscall.WaitStatus); ok {
			return ClassifyWaitStatus(ws)
		}
	}
	return ClassifyError(err)
}

// ---- timer plumbing (I3: at most one active timer of each kind) ----

func (s *Service) armTimer(slot *timerSlot, d time.Duration, fn func()) {
	s.cancelTimer(slot)
	slot.gen++
	gen := slot.gen
	slot.timer = time.AfterFunc(d, func() {
		s.deps.Actor.Submit(func() {
			if slot.gen != gen {
				return
			}
			fn()
		})
	})
}

func (s *Service) cancelTimer(slot *timerSlot) {
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
	slot.gen++
}
