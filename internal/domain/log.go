package domain

import "time"

// Stream identifies which child descriptor a captured line came from.
type Stream string

const (
	StreamStdout Stream = "out"
	StreamStderr Stream = "err"
)

func (s Stream) String() string { return string(s) }

// LogKind is the sink's severity classification (§4.5): the core maps
// stdout to Info and stderr to Error by default.
type LogKind string

const (
	LogTrace LogKind = "trace"
	LogDebug LogKind = "debug"
	LogInfo  LogKind = "info"
	LogWarn  LogKind = "warn"
	LogError LogKind = "error"
	LogFatal LogKind = "fatal"
)

// KindForStream applies the core's default stream -> kind mapping.
func KindForStream(s Stream) LogKind {
	if s == StreamStderr {
		return LogError
	}
	return LogInfo
}

var logKindSeverity = map[LogKind]int{
	LogTrace: 0,
	LogDebug: 1,
	LogInfo:  2,
	LogWarn:  3,
	LogError: 4,
	LogFatal: 5,
}

// Severity ranks a kind for threshold comparisons (`logger level=<kind>`,
// §4.5). An unrecognized kind ranks above every known kind so it is never
// silently dropped by a level filter.
func (k LogKind) Severity() int {
	if s, ok := logKindSeverity[k]; ok {
		return s
	}
	return len(logKindSeverity)
}

// LogEntry represents a single emitted record: emit(kind, name, stream, line).
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      LogKind   `json:"kind"`
	Process   string    `json:"process"` // service or proxy name, or "-"
	Stream    Stream    `json:"stream"`
	Line      string    `json:"line"`
}

// LogFilter defines criteria for filtering log entries.
type LogFilter struct {
	Processes []string
	Pattern   string
	IsRegex   bool
	MinKind   LogKind // "" means no severity floor
}

func (f LogFilter) IsEmpty() bool {
	return len(f.Processes) == 0 && f.Pattern == "" && f.MinKind == ""
}

func (f LogFilter) MatchesProcess(name string) bool {
	if len(f.Processes) == 0 {
		return true
	}
	for _, p := range f.Processes {
		if p == name {
			return true
		}
	}
	return false
}

// MatchesKind reports whether kind clears the filter's severity floor.
func (f LogFilter) MatchesKind(kind LogKind) bool {
	if f.MinKind == "" {
		return true
	}
	return kind.Severity() >= f.MinKind.Severity()
}

// LogStats contains statistics about the log buffer.
type LogStats struct {
	TotalEntries int
	BufferSize   int
	Subscribers  int
}
