package service

import (
	"testing"
	"time"

	"github.com/controlfreak/cfkd/internal/domain"
	"github.com/controlfreak/cfkd/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeps(actor *inlineActor) Deps {
	return Deps{
		Runner: runner.NewExecRunner(),
		Actor:  actor,
		Sink:   func(domain.LogKind, domain.Stream, string) {},
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func TestService_NormalLifecycle(t *testing.T) {
	actor := newInlineActor()
	cfg := domain.DefaultServiceConfig("s1")
	cfg.Cmd = domain.Command{Shell: "sleep 0.15"}
	cfg.RespawnOnFail = false
	cfg.StartWait = 10 * time.Millisecond

	svc := New("s1", cfg, newTestDeps(actor))

	assert.Equal(t, domain.ServiceStopped, svc.State())

	var err error
	actor.run(func() { _, err = svc.Start() })
	require.NoError(t, err)

	eventually(t, 1*time.Second, func() bool { return svc.State() == domain.ServiceRunning })
	eventually(t, 1*time.Second, func() bool { return svc.State() == domain.ServiceStopped })
}

func TestService_BackoffToFatal(t *testing.T) {
	actor := newInlineActor()
	cfg := domain.DefaultServiceConfig("s2")
	cfg.Cmd = domain.Command{Shell: "sleep 0.05; exit 255"}
	cfg.RespawnMaxRetries = 3
	// startwait outlasts the child, so every exit happens while starting,
	// which is the only state whose abnormal exit leads to backoff.
	cfg.StartWait = 1 * time.Second

	svc := New("s2", cfg, newTestDeps(actor))

	actor.run(func() { svc.Start() })

	eventually(t, 5*time.Second, func() bool { return svc.State() == domain.ServiceFatal })
	assert.Equal(t, 3, svc.Info().BackoffRetry)
}

func TestService_AlreadyUpAndAlreadyDown(t *testing.T) {
	actor := newInlineActor()
	cfg := domain.DefaultServiceConfig("s3")
	cfg.Cmd = domain.Command{Shell: "sleep 1"}

	svc := New("s3", cfg, newTestDeps(actor))

	var err error
	actor.run(func() { _, err = svc.Start() })
	require.NoError(t, err)

	actor.run(func() { _, err = svc.Start() })
	assert.ErrorIs(t, err, domain.ErrAlreadyUp)

	actor.run(func() { svc.Stop(nil) })
	eventually(t, 2*time.Second, func() bool { return svc.State() == domain.ServiceStopped })

	actor.run(func() { _, err = svc.Stop(nil) })
	assert.ErrorIs(t, err, domain.ErrAlreadyDown)
}

func TestService_ForcedKillAfterStopwait(t *testing.T) {
	actor := newInlineActor()
	cfg := domain.DefaultServiceConfig("s4")
	cfg.Cmd = domain.Command{Shell: "trap '' TERM; sleep 100"}
	cfg.StartWait = 10 * time.Millisecond
	cfg.StopWait = 150 * time.Millisecond

	svc := New("s4", cfg, newTestDeps(actor))

	actor.run(func() { svc.Start() })
	eventually(t, 1*time.Second, func() bool { return svc.State() == domain.ServiceRunning })

	actor.run(func() { svc.Stop(nil) })

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, domain.ServiceStopping, svc.State())

	eventually(t, 3*time.Second, func() bool { return svc.State() == domain.ServiceFail })
	assert.Contains(t, svc.Info().FailReason, "signal 9")
}

func TestService_RespawnOnRunningFailure(t *testing.T) {
	actor := newInlineActor()
	cfg := domain.DefaultServiceConfig("s5")
	cfg.Cmd = domain.Command{Shell: "sleep 0.25; exit 255"}
	cfg.StartWait = 1 * time.Millisecond

	svc := New("s5", cfg, newTestDeps(actor))

	actor.run(func() { svc.Start() })
	eventually(t, 1*time.Second, func() bool { return svc.State() == domain.ServiceRunning })
	pid1 := svc.Info().PID
	assert.Greater(t, pid1, 0)

	actor.run(func() {
		c := svc.Config()
		c.Cmd = domain.Command{Shell: "sleep 300; exit 255"}
		svc.Configure(c)
	})

	eventually(t, 2*time.Second, func() bool {
		return svc.State() == domain.ServiceRunning && svc.Info().PID != pid1
	})
}
