// Command cfk-proxyhost is the reference proxy host (spec §4.2): a child
// process forked by the supervisor so that a family of services can share
// whatever the proxy preloaded before forking them. It speaks the three-pipe
// wire protocol defined in internal/proxywire and nothing else; it has no
// knowledge of the supervisor's state machine.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"syscall"

	"github.com/controlfreak/cfkd/internal/domain"
	"github.com/controlfreak/cfkd/internal/proxywire"
	"github.com/controlfreak/cfkd/internal/runner"
)

type child struct {
	proc runner.Process
	name string
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("cfk-proxyhost: %v", err)
	}
}

func run() error {
	cmdFD, statusFD, logFD, err := proxywire.ParseFDEnv()
	if err != nil {
		return fmt.Errorf("parsing pipe fd environment: %w", err)
	}

	cmdFile := os.NewFile(uintptr(cmdFD), "command")
	statusFile := os.NewFile(uintptr(statusFD), "status")
	logFile := os.NewFile(uintptr(logFD), "log")
	if cmdFile == nil || statusFile == nil || logFile == nil {
		return fmt.Errorf("one or more inherited pipe descriptors are invalid")
	}

	sockets := proxywire.InheritedSockets()

	h := &host{
		rr:         runner.NewExecRunner(),
		statusFile: statusFile,
		logFile:    logFile,
		sockets:    sockets,
		children:   make(map[string]*child),
	}

	cr := proxywire.NewCommandReader(cmdFile)
	for {
		cmd, err := cr.Next()
		if err != nil {
			return nil // command pipe closed: supervisor is shutting us down
		}
		h.handle(cmd)
	}
}

// host holds the proxy host's live state: running children and the pipes
// back to the supervisor.
type host struct {
	mu sync.Mutex

	rr         runner.ProcessRunner
	statusFile *os.File
	logFile    *os.File
	sockets    map[string]int

	children map[string]*child
}

func (h *host) handle(cmd domain.ProxyCommand) {
	switch cmd.Command {
	case "start":
		h.start(cmd)
	case "stop":
		h.stop(cmd.Name)
	}
}

func (h *host) start(cmd domain.ProxyCommand) {
	spec := runner.Spec{
		Name:         cmd.Name,
		NoNewSession: cmd.NoNewSession,
		Env:          cmd.Env,
		IgnoreStdout: cmd.IgnoreStdout,
		IgnoreStderr: cmd.IgnoreStderr,
	}
	if len(cmd.Cmd.Argv) > 0 {
		spec.Argv = cmd.Cmd.Argv
	} else {
		spec.Shell = cmd.Cmd.Shell
	}
	if cmd.TieStdinTo != "" {
		if fd, ok := h.sockets[cmd.TieStdinTo]; ok {
			spec.Stdin = os.NewFile(uintptr(fd), cmd.TieStdinTo)
		}
	}

	proc, err := h.rr.Start(context.Background(), spec)
	if err != nil {
		h.writeStatus(domain.ProxyStatusMsg{Status: "stopped", Name: cmd.Name})
		return
	}

	h.mu.Lock()
	h.children[cmd.Name] = &child{proc: proc, name: cmd.Name}
	h.mu.Unlock()

	h.writeStatus(domain.ProxyStatusMsg{Status: "started", Name: cmd.Name, PID: proc.PID()})

	if proc.Stdout() != nil && !cmd.IgnoreStdout {
		go h.pump(cmd.Name, domain.ProxyLogOut, proc.Stdout())
	}
	if proc.Stderr() != nil && !cmd.IgnoreStderr {
		go h.pump(cmd.Name, domain.ProxyLogErr, proc.Stderr())
	}

	go h.wait(cmd.Name, proc)
}

func (h *host) stop(name string) {
	h.mu.Lock()
	c, ok := h.children[name]
	h.mu.Unlock()
	if !ok {
		return
	}
	c.proc.Signal(runner.SigTerm)
}

func (h *host) wait(name string, proc runner.Process) {
	err := proc.Wait()

	h.mu.Lock()
	delete(h.children, name)
	h.mu.Unlock()

	h.writeStatus(domain.ProxyStatusMsg{
		Status:     "stopped",
		Name:       name,
		PID:        proc.PID(),
		WaitStatus: waitStatusInt(err),
	})
}

// waitStatusInt extracts the raw kernel wait status so the supervisor can
// run the identical exit classification it uses for direct-spawn children.
func waitStatusInt(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(interface{ Sys() interface{} }); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return int(ws)
		}
	}
	return 1
}

func (h *host) pump(name string, stream domain.ProxyLogStream, r io.Reader) {
	buf := make([]byte, 64*1024)
	var line []byte
	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			c := buf[i]
			if c == '\n' {
				h.writeLog(stream, name, string(line))
				line = line[:0]
				continue
			}
			line = append(line, c)
		}
		if err != nil {
			if len(line) > 0 {
				h.writeLog(stream, name, string(line))
			}
			return
		}
	}
}

func (h *host) writeStatus(st domain.ProxyStatusMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	proxywire.WriteStatus(h.statusFile, st)
}

func (h *host) writeLog(stream domain.ProxyLogStream, name, payload string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	proxywire.WriteLog(h.logFile, stream, name, payload)
}
