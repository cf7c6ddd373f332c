package dispatch

import "github.com/controlfreak/cfkd/internal/domain"

// Target is everything the dispatcher needs from the controller. It is
// defined here, not in internal/controller, so internal/controller can
// depend on internal/dispatch without a cycle.
type Target interface {
	// Record mutation (privileged). attr/value are as they appeared on the
	// line, still quoted/bracketed; the target is responsible for the
	// per-attribute parsing rules (bool vocabulary, vector vs shell string,
	// quote stripping).
	SetServiceAttr(name, attr, value string) error
	SetSocketAttr(name, attr, value string) error
	SetProxyAttr(name, attr, value string) error
	SetConsoleAttr(attr, value string) error
	SetLoggerAttr(attr, value string) error

	// Controller verbs (`command <verb> <args>`).
	Start(sel domain.Selector) error
	Stop(sel domain.Selector) error
	Restart(sel domain.Selector) error
	Up(sel domain.Selector) error
	Down(sel domain.Selector) error
	Destroy(sel domain.Selector) error
	ProxyUp(name string) error
	ProxyDown(name string) error
	List() []string
	Desc(sel domain.Selector) ([]string, error)
	Status(sel domain.Selector) ([]string, error)
	Pids(sel domain.Selector) ([]string, error)
	ProxyStatus() []string
	Bind(socket string) error
	Version() string
	Shutdown() error
	ReloadConfig() error
}
