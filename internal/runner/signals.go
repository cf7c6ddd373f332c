package runner

import (
	"os"
	"syscall"
)

// Signal definitions kept as variables, not constants, so tests can
// substitute a fake runner without depending on build tags.
var (
	SigTerm os.Signal = syscall.SIGTERM
	SigKill os.Signal = syscall.SIGKILL
	SigInt  os.Signal = syscall.SIGINT
	SigHup  os.Signal = syscall.SIGHUP
)
