package runner

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Start(t *testing.T) {
	r := NewExecRunner()
	ctx := context.Background()

	t.Run("starts simple command", func(t *testing.T) {
		proc, err := r.Start(ctx, Spec{Name: "t", Shell: "echo hello"})
		require.NoError(t, err)
		assert.Greater(t, proc.PID(), 0)

		output, err := io.ReadAll(proc.Stdout())
		require.NoError(t, err)
		assert.Contains(t, string(output), "hello")

		assert.NoError(t, proc.Wait())
	})

	t.Run("passes environment overlay", func(t *testing.T) {
		proc, err := r.Start(ctx, Spec{
			Name:  "t",
			Shell: "echo $TEST_VAR",
			Env:   map[string]string{"TEST_VAR": "test_value", "PATH": "/usr/bin:/bin"},
		})
		require.NoError(t, err)

		output, err := io.ReadAll(proc.Stdout())
		require.NoError(t, err)
		assert.Contains(t, string(output), "test_value")
		proc.Wait()
	})

	t.Run("captures stderr", func(t *testing.T) {
		proc, err := r.Start(ctx, Spec{Name: "t", Shell: "echo bad >&2"})
		require.NoError(t, err)

		output, err := io.ReadAll(proc.Stderr())
		require.NoError(t, err)
		assert.Contains(t, string(output), "bad")
		proc.Wait()
	})

	t.Run("ignore_stdout leaves Stdout nil", func(t *testing.T) {
		proc, err := r.Start(ctx, Spec{Name: "t", Shell: "echo hi", IgnoreStdout: true})
		require.NoError(t, err)
		assert.Nil(t, proc.Stdout())
		proc.Wait()
	})

	t.Run("can be signaled", func(t *testing.T) {
		proc, err := r.Start(ctx, Spec{Name: "t", Shell: "sleep 30"})
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)
		require.NoError(t, proc.Signal(SigTerm))

		done := make(chan error, 1)
		go func() { done <- proc.Wait() }()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("process did not exit after signal")
		}
	})

	t.Run("context cancellation does not kill the process", func(t *testing.T) {
		cctx, cancel := context.WithCancel(context.Background())
		proc, err := r.Start(cctx, Spec{Name: "t", Shell: "sleep 30"})
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)
		cancel()

		done := make(chan error, 1)
		go func() { done <- proc.Wait() }()

		select {
		case <-done:
			t.Fatal("process should not be killed by context cancellation alone")
		case <-time.After(200 * time.Millisecond):
		}

		proc.Signal(SigTerm)
		<-done
	})

	t.Run("exit code surfaces on Wait", func(t *testing.T) {
		proc, err := r.Start(ctx, Spec{Name: "t", Shell: "exit 42"})
		require.NoError(t, err)
		err = proc.Wait()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "42")
	})
}
