// Package admin implements the line-oriented admin endpoint (spec §4.4):
// a listener accepting concurrent clients, each driven by a CRLF-framed
// read/dispatch/respond loop that calls into internal/dispatch.
package admin

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// DispatchFunc handles one admin line and returns the full response text.
// cmd/cfkd wires it to dispatch.Dispatch over the controller, so this
// package never needs to know dispatch.Target's shape.
type DispatchFunc func(line string, hasPriv bool) string

// Config configures one admin listener (spec §4.4: unix socket by default,
// tcp via `console host=...`/`console port=...`).
type Config struct {
	Network string // "unix" or "tcp"
	Address string // path or host:port
	Full    bool   // hasPriv for every connection on this listener
}

// Server accepts admin connections and serves them concurrently. Full
// privilege is fixed at construction time per listener (spec §4.4's
// console full=false read-only mode is a separate bind, not a per-line
// decision).
type Server struct {
	cfg      Config
	dispatch DispatchFunc
	log      zerolog.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

func New(cfg Config, dispatch DispatchFunc, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, dispatch: dispatch, log: log}
}

// Addr returns the bound address, valid only after Serve has started
// listening. For a tcp listener bound to port 0 it carries the port the
// kernel chose.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve binds the listener and accepts connections until ctx is canceled
// or the listener is closed. It is the Serve method a suture.Service
// expects (spec §4.7).
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen(s.cfg.Network, s.cfg.Address)
	if err != nil {
		return fmt.Errorf("admin: listen %s %s: %w", s.cfg.Network, s.cfg.Address, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info().Str("network", s.cfg.Network).Str("addr", ln.Addr().String()).Bool("full", s.cfg.Full).Msg("admin endpoint listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("admin: accept: %w", err)
			}
		}
		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

// serveConn runs the read/dispatch/respond loop for one connection. Writes
// are serialized per-connection by construction (one goroutine owns the
// conn); concurrent clients are independent (spec §5 - no ordering
// promised across connections).
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Closing the conn on ctx cancellation unblocks the read below, so
	// Serve's wait for open connections ends on shutdown.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if line == "" && err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		if strings.TrimSpace(line) == "exit" {
			conn.Write([]byte("OK\r\n"))
			return
		}

		resp := s.dispatch(line, s.cfg.Full)
		if _, werr := conn.Write([]byte(resp + "\r\n")); werr != nil {
			return
		}
		if err != nil {
			return
		}
	}
}

// ParseListenSpec turns a console host/port pair into a Config's
// network/address (spec §4.4): a non-empty socketPath binds a unix socket
// at that path and host/port are ignored; otherwise it's tcp host:port,
// where port=0 requests an ephemeral port.
func ParseListenSpec(host string, port int, socketPath string, full bool) Config {
	if socketPath != "" {
		return Config{Network: "unix", Address: socketPath, Full: full}
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	return Config{Network: "tcp", Address: addr, Full: full}
}
