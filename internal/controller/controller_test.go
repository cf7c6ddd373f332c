package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controlfreak/cfkd/internal/domain"
)

func allSelector() domain.Selector {
	return domain.Selector{Kind: domain.SelectorAll}
}

func serviceSelector(name string) domain.Selector {
	return domain.Selector{Kind: domain.SelectorService, Value: name}
}

func TestController_StartStop(t *testing.T) {
	ctl := New(t.TempDir())
	defer ctl.StopActor()

	require.NoError(t, ctl.SetServiceAttr("web", "cmd", `"sleep 30"`))

	require.NoError(t, ctl.Start(serviceSelector("web")))

	info, err := ctl.ServiceInfo("web")
	require.NoError(t, err)
	assert.True(t, info.State.Up())
	assert.NotZero(t, info.PID)

	require.NoError(t, ctl.Stop(serviceSelector("web")))

	info, err = ctl.ServiceInfo("web")
	require.NoError(t, err)
	assert.True(t, info.State.Down())
}

func TestController_StartAlreadyUpFails(t *testing.T) {
	ctl := New(t.TempDir())
	defer ctl.StopActor()

	require.NoError(t, ctl.SetServiceAttr("web", "cmd", `"sleep 30"`))
	require.NoError(t, ctl.Start(serviceSelector("web")))

	err := ctl.Start(serviceSelector("web"))
	assert.ErrorIs(t, err, domain.ErrAlreadyUp)
}

func TestController_UpIsIdempotent(t *testing.T) {
	ctl := New(t.TempDir())
	defer ctl.StopActor()

	require.NoError(t, ctl.SetServiceAttr("web", "cmd", `"sleep 30"`))
	require.NoError(t, ctl.Up(serviceSelector("web")))
	require.NoError(t, ctl.Up(serviceSelector("web"))) // already up, no error
}

func TestController_DestroyRequiresDown(t *testing.T) {
	ctl := New(t.TempDir())
	defer ctl.StopActor()

	require.NoError(t, ctl.SetServiceAttr("web", "cmd", `"sleep 30"`))
	require.NoError(t, ctl.Start(serviceSelector("web")))

	err := ctl.Destroy(serviceSelector("web"))
	assert.ErrorIs(t, err, domain.ErrDestroyRequiresDown)

	require.NoError(t, ctl.Stop(serviceSelector("web")))
	require.NoError(t, ctl.Destroy(serviceSelector("web")))
	assert.Empty(t, ctl.List())
}

func TestController_SelectorAllAppliesToEveryService(t *testing.T) {
	ctl := New(t.TempDir())
	defer ctl.StopActor()

	require.NoError(t, ctl.SetServiceAttr("a", "cmd", `"sleep 30"`))
	require.NoError(t, ctl.SetServiceAttr("b", "cmd", `"sleep 30"`))

	require.NoError(t, ctl.Start(allSelector()))

	for _, name := range []string{"a", "b"} {
		info, err := ctl.ServiceInfo(name)
		require.NoError(t, err)
		assert.True(t, info.State.Up())
	}
}

func TestController_StatusLineFormat(t *testing.T) {
	ctl := New(t.TempDir())
	defer ctl.StopActor()

	require.NoError(t, ctl.SetServiceAttr("web", "cmd", `"sleep 30"`))

	lines, err := ctl.Status(serviceSelector("web"))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "web")
	assert.Contains(t, lines[0], "stopped")
}

func TestController_LoggerLevelFiltersSink(t *testing.T) {
	ctl := New(t.TempDir())
	defer ctl.StopActor()

	require.NoError(t, ctl.SetLoggerAttr("level", "error"))
	assert.Equal(t, domain.LogError, ctl.Logs().MinLevel())

	ctl.Logs().Write(domain.LogEntry{Kind: domain.LogDebug, Line: "noisy"})
	ctl.Logs().Write(domain.LogEntry{Kind: domain.LogError, Line: "bang"})

	stats := ctl.Logs().Stats()
	assert.Equal(t, 1, stats.TotalEntries)
}

func TestController_ShutdownStopsEverything(t *testing.T) {
	ctl := New(t.TempDir())
	defer ctl.StopActor()

	require.NoError(t, ctl.SetServiceAttr("web", "cmd", `"sleep 30"`))
	require.NoError(t, ctl.Start(serviceSelector("web")))

	require.NoError(t, ctl.Shutdown())
	assert.True(t, ctl.ShuttingDown())

	info, err := ctl.ServiceInfo("web")
	require.NoError(t, err)
	assert.True(t, info.State.Down())
}
