package domain

// ConsoleConfig holds the attributes assignable via `console <attr>=<value>`
// (spec §4.4, §4.6): the admin line endpoint plus the optional read-only
// HTTP observability surface.
type ConsoleConfig struct {
	Host string
	Port int // 0 means UNIX domain socket at <home>/sock
	Full bool // has_priv granted to every connection on this endpoint

	HTTPAddr string // empty disables the observability surface (§4.6)
}

func DefaultConsoleConfig() ConsoleConfig {
	return ConsoleConfig{Full: true}
}

// LoggerConfig holds the attributes assignable via `logger <attr>=<value>`.
type LoggerConfig struct {
	BufferSize int
	Level      LogKind
}

func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{BufferSize: 2000, Level: LogTrace}
}
