package logs

import (
	"sync/atomic"

	"github.com/controlfreak/cfkd/internal/domain"
)

// ManagerConfig holds the sink's construction-time knobs (spec §4.5).
// MinLevel can later be changed with SetMinLevel (`logger level=...`);
// BufferSize cannot be changed after construction.
type ManagerConfig struct {
	BufferSize         int            // Number of entries to keep in ring buffer
	SubscriptionBuffer int            // Buffer size for subscription channels
	MinLevel           domain.LogKind // entries below this severity never reach the buffer or subscribers
}

// DefaultManagerConfig returns the default configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BufferSize:         1000,
		SubscriptionBuffer: 100,
		MinLevel:           domain.LogTrace,
	}
}

// Manager is the daemon-wide log sink: every emit(kind, name, stream, line)
// call (§4.5) lands here before fanning out to the ring buffer and any live
// subscriptions.
type Manager struct {
	buffer        *RingBuffer
	subscriptions *SubscriptionManager
	minLevel      atomic.Value // domain.LogKind
}

// NewManager creates a new log manager
func NewManager(config ManagerConfig) *Manager {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultManagerConfig().BufferSize
	}
	if config.SubscriptionBuffer <= 0 {
		config.SubscriptionBuffer = DefaultManagerConfig().SubscriptionBuffer
	}
	if config.MinLevel == "" {
		config.MinLevel = DefaultManagerConfig().MinLevel
	}

	m := &Manager{
		buffer:        NewRingBuffer(config.BufferSize),
		subscriptions: NewSubscriptionManager(config.SubscriptionBuffer),
	}
	m.minLevel.Store(config.MinLevel)
	return m
}

// SetMinLevel changes the sink's severity floor at runtime (`logger
// level=<kind>`, §4.5). Entries below it are dropped before they reach the
// buffer or any subscriber, not merely hidden from query filters.
func (m *Manager) SetMinLevel(kind domain.LogKind) {
	if kind == "" {
		return
	}
	m.minLevel.Store(kind)
}

// MinLevel reports the sink's current severity floor.
func (m *Manager) MinLevel() domain.LogKind {
	return m.minLevel.Load().(domain.LogKind)
}

// Write adds a log entry to the buffer and broadcasts to subscribers, unless
// its kind falls below the configured severity floor.
func (m *Manager) Write(entry domain.LogEntry) {
	if entry.Kind.Severity() < m.MinLevel().Severity() {
		return
	}
	m.buffer.Write(entry)
	m.subscriptions.Broadcast(entry)
}

// Query retrieves log entries matching the filter
// Returns the entries and the total count before limiting
func (m *Manager) Query(filter domain.LogFilter, limit int) ([]domain.LogEntry, int, error) {
	entries := m.buffer.Read()
	return FilterEntriesLimit(entries, filter, limit)
}

// QueryLast retrieves the last n log entries matching the filter
func (m *Manager) QueryLast(filter domain.LogFilter, n int) ([]domain.LogEntry, int, error) {
	entries := m.buffer.Read()
	filtered, err := FilterEntries(entries, filter)
	if err != nil {
		return nil, 0, err
	}

	total := len(filtered)
	if n > 0 && len(filtered) > n {
		filtered = filtered[len(filtered)-n:]
	}

	return filtered, total, nil
}

// Subscribe creates a subscription for log entries matching the filter
func (m *Manager) Subscribe(filter domain.LogFilter) (string, <-chan domain.LogEntry, error) {
	return m.subscriptions.Subscribe(filter)
}

// Unsubscribe removes a subscription
func (m *Manager) Unsubscribe(id string) {
	m.subscriptions.Unsubscribe(id)
}

// Stats returns statistics about the log manager
func (m *Manager) Stats() domain.LogStats {
	return domain.LogStats{
		TotalEntries: m.buffer.Count(),
		BufferSize:   m.buffer.Capacity(),
		Subscribers:  m.subscriptions.Count(),
	}
}

// Close closes the manager and all subscriptions
func (m *Manager) Close() {
	m.subscriptions.Close()
}
