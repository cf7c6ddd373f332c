// Package proxywire implements the three line-delimited wire formats
// exchanged between the supervisor and a proxy host process (spec §4.2):
// command (JSON, supervisor->proxy), status (JSON, proxy->supervisor), and
// log (plain text, proxy->supervisor). Both cmd/cfk-proxyhost and the
// supervisor-side internal/proxy package depend only on this package, never
// on each other, so the wire format stays the single source of truth for a
// reimplementation in another language.
package proxywire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/controlfreak/cfkd/internal/domain"
)

// WriteCommand encodes one command as a JSON line.
func WriteCommand(w io.Writer, cmd domain.ProxyCommand) error {
	b, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// WriteStatus encodes one status message as a JSON line.
func WriteStatus(w io.Writer, st domain.ProxyStatusMsg) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// WriteLog encodes one log line in the fixed text format
// "<stream>:<svcname-or-"-">:<payload>".
func WriteLog(w io.Writer, stream domain.ProxyLogStream, name, payload string) error {
	if name == "" {
		name = "-"
	}
	_, err := fmt.Fprintf(w, "%s:%s:%s\n", stream, name, payload)
	return err
}

// CommandReader decodes successive commands from the command pipe.
type CommandReader struct{ s *bufio.Scanner }

func NewCommandReader(r io.Reader) *CommandReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	return &CommandReader{s: s}
}

func (c *CommandReader) Next() (domain.ProxyCommand, error) {
	if !c.s.Scan() {
		if err := c.s.Err(); err != nil {
			return domain.ProxyCommand{}, err
		}
		return domain.ProxyCommand{}, io.EOF
	}
	var cmd domain.ProxyCommand
	if err := json.Unmarshal(c.s.Bytes(), &cmd); err != nil {
		return domain.ProxyCommand{}, fmt.Errorf("decoding command line: %w", err)
	}
	return cmd, nil
}

// StatusReader decodes successive status messages from the status pipe.
type StatusReader struct{ s *bufio.Scanner }

func NewStatusReader(r io.Reader) *StatusReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	return &StatusReader{s: s}
}

func (c *StatusReader) Next() (domain.ProxyStatusMsg, error) {
	if !c.s.Scan() {
		if err := c.s.Err(); err != nil {
			return domain.ProxyStatusMsg{}, err
		}
		return domain.ProxyStatusMsg{}, io.EOF
	}
	var st domain.ProxyStatusMsg
	if err := json.Unmarshal(c.s.Bytes(), &st); err != nil {
		return domain.ProxyStatusMsg{}, fmt.Errorf("decoding status line: %w", err)
	}
	return st, nil
}

// LogLine is one decoded log-pipe record.
type LogLine struct {
	Stream  domain.ProxyLogStream
	Name    string
	Payload string
}

// LogReader decodes successive lines from the log pipe.
type LogReader struct{ s *bufio.Scanner }

func NewLogReader(r io.Reader) *LogReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	return &LogReader{s: s}
}

func (l *LogReader) Next() (LogLine, error) {
	if !l.s.Scan() {
		if err := l.s.Err(); err != nil {
			return LogLine{}, err
		}
		return LogLine{}, io.EOF
	}
	line := l.s.Text()
	parts := strings.SplitN(line, ":", 3)
	if len(parts) != 3 {
		return LogLine{}, fmt.Errorf("malformed log line: %q", line)
	}
	return LogLine{Stream: domain.ProxyLogStream(parts[0]), Name: parts[1], Payload: parts[2]}, nil
}
