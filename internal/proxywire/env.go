package proxywire

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/controlfreak/cfkd/internal/constants"
)

// Env builds the environment variables a proxy host needs to locate its
// three inherited pipes and any inherited listening sockets (§4.2, §6).
// fdBase is the index of the first ExtraFiles entry (command pipe);
// status and log follow at fdBase+1 and fdBase+2. sockFDs maps socket name
// to its ExtraFiles index.
func Env(fdBase int, sockFDs map[string]int) []string {
	env := []string{
		fmt.Sprintf("%s=%d", constants.ProxyCommandFDEnvVar, fdBase+3),
		fmt.Sprintf("%s=%d", constants.ProxyStatusFDEnvVar, fdBase+4),
		fmt.Sprintf("%s=%d", constants.ProxyLogFDEnvVar, fdBase+5),
	}
	for name, idx := range sockFDs {
		env = append(env, fmt.Sprintf("%s%s=%d", constants.ProxySockEnvPrefix, name, idx+3))
	}
	return env
}

// ParseFDEnv reads the three pipe descriptor numbers from the process's own
// environment, as a reimplementation of the proxy host would.
func ParseFDEnv() (cmdFD, statusFD, logFD int, err error) {
	get := func(name string, fallback int) (int, error) {
		v := os.Getenv(name)
		if v == "" {
			return fallback, nil
		}
		return strconv.Atoi(v)
	}
	if cmdFD, err = get(constants.ProxyCommandFDEnvVar, constants.ProxyCommandFD); err != nil {
		return 0, 0, 0, err
	}
	if statusFD, err = get(constants.ProxyStatusFDEnvVar, constants.ProxyStatusFD); err != nil {
		return 0, 0, 0, err
	}
	if logFD, err = get(constants.ProxyLogFDEnvVar, constants.ProxyLogFD); err != nil {
		return 0, 0, 0, err
	}
	return cmdFD, statusFD, logFD, nil
}

// InheritedSockets returns the name->fd map of every _CFK_SOCK_<name>
// variable present in the process's environment.
func InheritedSockets() map[string]int {
	out := make(map[string]int)
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, constants.ProxySockEnvPrefix) {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		name := strings.TrimPrefix(parts[0], constants.ProxySockEnvPrefix)
		fd, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		out[name] = fd
	}
	return out
}
