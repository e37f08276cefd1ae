//go:build unix

package trainer

import (
	"os/exec"
	"syscall"
)

// configureProcess puts the script in its own process group so that
// cancellation also stops the processes it spawned.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
