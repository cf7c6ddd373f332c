// Package socket implements the supervisor's named listening-socket
// registry (spec §3 Socket, §4.2 fd inheritance).
package socket

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/controlfreak/cfkd/internal/domain"
)

// Socket is a bound, listening descriptor the supervisor owns and may hand
// to child processes by inheritance or by tying a service's stdin to it.
type Socket struct {
	mu       sync.RWMutex
	cfg      domain.SocketConfig
	listener net.Listener
	file     *os.File // duplicated fd, close-on-exec cleared, safe to inherit
}

// Registry owns every named Socket, keyed by name. Bind is idempotent with
// respect to names: a second bind on the same name is rejected.
type Registry struct {
	mu      sync.RWMutex
	sockets map[string]*Socket
}

func NewRegistry() *Registry {
	return &Registry{sockets: make(map[string]*Socket)}
}

// Configure creates or updates a socket's configuration. It does not bind.
func (r *Registry) Configure(cfg domain.SocketConfig) *Socket {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sockets[cfg.Name]
	if !ok {
		s = &Socket{cfg: cfg}
		r.sockets[cfg.Name] = s
		return s
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return s
}

func (r *Registry) Get(name string) (*Socket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sockets[name]
	return s, ok
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sockets[name]; ok {
		s.Close()
		delete(r.sockets, name)
	}
}

func (r *Registry) All() []*Socket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Socket, 0, len(r.sockets))
	for _, s := range r.sockets {
		out = append(out, s)
	}
	return out
}

// Bind creates the listening descriptor. Rejects a second bind on the same
// name (I5 of §3: bind is idempotent w.r.t. names).
func (s *Socket) Bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("%w: socket %q already bound", domain.ErrBindFailed, s.cfg.Name)
	}

	network, addr := s.networkAndAddr()
	ln, err := net.Listen(network, addr)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBindFailed, err)
	}

	var file *os.File
	switch t := ln.(type) {
	case *net.TCPListener:
		file, err = t.File()
	case *net.UnixListener:
		file, err = t.File()
	default:
		err = fmt.Errorf("unsupported listener type %T", ln)
	}
	if err != nil {
		ln.Close()
		return fmt.Errorf("%w: extracting descriptor: %v", domain.ErrBindFailed, err)
	}

	// (*net.TCPListener).File dup()s the fd and marks the dup close-on-exec;
	// clear it so ExtraFiles inheritance across exec actually works (§6).
	clearCloseOnExec(file)

	s.listener = ln
	s.file = file
	return nil
}

func (s *Socket) networkAndAddr() (string, string) {
	network := "tcp"
	addr := s.cfg.Service
	if strings.HasPrefix(s.cfg.Service, "/") {
		network = "unix"
	} else if s.cfg.Host != "" {
		addr = net.JoinHostPort(s.cfg.Host, s.cfg.Service)
	} else if _, err := strconv.Atoi(s.cfg.Service); err == nil {
		addr = net.JoinHostPort("0.0.0.0", s.cfg.Service)
	}
	return network, addr
}

// File returns the duplicated, inheritable descriptor, or nil if unbound.
func (s *Socket) File() *os.File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file
}

// Config returns the socket's current configuration.
func (s *Socket) Config() domain.SocketConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Socket) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Name
}

func (s *Socket) Info() domain.SocketInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := domain.SocketInfo{Name: s.cfg.Name, Bound: s.listener != nil}
	if s.listener != nil {
		info.Addr = s.listener.Addr().String()
	}
	if s.file != nil {
		info.FD = int(s.file.Fd())
	}
	return info
}

// Close tears down the listener. The supervisor only ever calls this while
// destroying the controller or the socket itself - never while a bound
// service still references it (§5 shared-resources rule).
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	s.listener = nil
	return err
}
