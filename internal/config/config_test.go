package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controlfreak/cfkd/internal/controller"
)

func TestApply_ServiceLines(t *testing.T) {
	ctl := controller.New(t.TempDir())
	t.Cleanup(ctl.StopActor)

	text := `
# a comment on its own line
service web cmd="npm run dev"

service web desc="frontend dev server"
`
	require.NoError(t, Apply(text, "", ctl))

	cfg, err := ctl.ServiceConfig("web")
	require.NoError(t, err)
	assert.Equal(t, "frontend dev server", cfg.Desc)
	assert.Equal(t, "npm run dev", cfg.Cmd.String())
}

func TestApply_BaseSubstitution(t *testing.T) {
	ctl := controller.New(t.TempDir())
	t.Cleanup(ctl.StopActor)

	require.NoError(t, Apply(`service api cmd="${BASE}/bin/api"`, "/srv/app", ctl))

	cfg, err := ctl.ServiceConfig("api")
	require.NoError(t, err)
	assert.Contains(t, cfg.Cmd.String(), "/srv/app/bin/api")
}

func TestApply_LoggerLineAfterServiceLineAccepted(t *testing.T) {
	ctl := controller.New(t.TempDir())
	t.Cleanup(ctl.StopActor)

	// The logger line appears after the service line in the file; Apply
	// must still accept both regardless of file order.
	text := `
service web cmd="echo hi"
logger level=debug
`
	require.NoError(t, Apply(text, "", ctl))

	_, err := ctl.ServiceConfig("web")
	require.NoError(t, err)
}

func TestApply_InvalidLineAggregatesError(t *testing.T) {
	ctl := controller.New(t.TempDir())
	t.Cleanup(ctl.StopActor)

	err := Apply("service\nservice web cmd=\"echo hi\"", "", ctl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service")

	cfg, cerr := ctl.ServiceConfig("web")
	require.NoError(t, cerr)
	assert.Equal(t, "echo hi", cfg.Cmd.String())
}

func TestLoad_MissingFile(t *testing.T) {
	ctl := controller.New(t.TempDir())
	t.Cleanup(ctl.StopActor)

	err := Load(filepath.Join(t.TempDir(), "missing.conf"), "", ctl)
	require.Error(t, err)
}

func TestLoad_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfkd.conf")
	require.NoError(t, os.WriteFile(path, []byte("service web cmd=\"echo hi\"\n"), 0644))

	ctl := controller.New(t.TempDir())
	t.Cleanup(ctl.StopActor)

	require.NoError(t, Load(path, "", ctl))
	cfg, err := ctl.ServiceConfig("web")
	require.NoError(t, err)
	assert.Equal(t, "echo hi", cfg.Cmd.String())
}
