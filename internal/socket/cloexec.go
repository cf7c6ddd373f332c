package socket

import (
	"os"
	"syscall"
)

// clearCloseOnExec clears FD_CLOEXEC so f survives exec and can be inherited
// by a spawned child via ExtraFiles (spec §6: "descriptors passed through
// exec must have their close-on-exec flag explicitly cleared").
func clearCloseOnExec(f *os.File) {
	_, _, _ = syscall.Syscall(syscall.SYS_FCNTL, f.Fd(), syscall.F_SETFD, 0)
}
