//go:build unix

package transport

import (
	"os/exec"
	"syscall"
)

// setProcGroup places the child in its own process group so terminate() can
// signal every descendant it may have forked.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

func terminateProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
