//go:build windows

package transport

import (
	"fmt"
	"os/exec"
	"syscall"
)

// setProcGroup places the child in its own process group on Windows via
// CREATE_NEW_PROCESS_GROUP.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

func killProcessGroup(pid int) error {
	kill := exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprintf("%d", pid))
	return kill.Run()
}

func terminateProcessGroup(pid int) error {
	return killProcessGroup(pid)
}
