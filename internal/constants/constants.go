// Package constants provides shared configuration values used across the
// control-freak daemon.
package constants

import "time"

// Home and config defaults (§6: default admin endpoint address).
const (
	// DefaultHomeDirName is appended to the user's home directory when
	// neither -home nor CONTROL_FREAK_HOME is set.
	DefaultHomeDirName = ".controlfreak"

	// DefaultSockName is the admin endpoint's UNIX socket filename under
	// the home directory.
	DefaultSockName = "sock"

	// HomeEnvVar is read by cfkd to locate its home directory when -home
	// is not given. It is not added to service environments.
	HomeEnvVar = "CONTROL_FREAK_HOME"

	// ServiceEnabledEnvVar and ServiceNameEnvVar are injected into every
	// service's environment at spawn time (§3, §6).
	ServiceEnabledEnvVar = "CONTROL_FREAK_ENABLED"
	ServiceNameEnvVar    = "CONTROL_FREAK_SERVICE"
)

// Proxy host file-descriptor and environment-variable conventions (§4.2).
const (
	ProxyCommandFD = 3
	ProxyStatusFD  = 4
	ProxyLogFD     = 5

	ProxyCommandFDEnvVar = "_CFK_COMMAND_FD"
	ProxyStatusFDEnvVar  = "_CFK_STATUS_FD"
	ProxyLogFDEnvVar     = "_CFK_LOG_FD"
	ProxySockEnvPrefix   = "_CFK_SOCK_"
)

// Service defaults (§3).
const (
	DefaultStartWait         = 1 * time.Second
	DefaultStopWait          = 2 * time.Second
	DefaultRespawnMaxRetries = 8

	// BaseBackoffDelay is the base unit of the backoff formula:
	// BASE_BACKOFF_DELAY * uniform_int[1, 2n-1] for attempt n.
	BaseBackoffDelay = 300 * time.Millisecond

	// RestartPollDivisor / RestartPollMaxTries bound the `restart`
	// command's wait for the service to reach down (§4.1): one poll every
	// stopwait/RestartPollDivisor, at most RestartPollMaxTries polls.
	RestartPollDivisor  = 10
	RestartPollMaxTries = 150

	// ProxyBlacklistAge bounds how long a proxy keeps the pid of a
	// `stopped` status on its blacklist (§4.2, §9 open question).
	ProxyBlacklistAge = 5 * time.Second

	// ProxyShutdownGrace is how long the controller waits for a proxy to
	// report itself gone before forcing the bookkeeping (§4.2).
	ProxyShutdownGrace = 3 * time.Second
)

// Log sink defaults (§4.5 implementation).
const (
	DefaultLogBufferSize      = 2000
	DefaultSubscriptionBuffer = 256
	DefaultLogLimit           = 100
	MaxLogLines               = 10000

	ScannerBufferSize    = 64 * 1024
	ScannerMaxBufferSize = 1024 * 1024
)

// Observability surface defaults (§4.6, added).
const (
	DefaultHTTPRequestTimeout = 30 * time.Second
	DefaultShutdownTimeout    = 10 * time.Second
)
