//go:build !windows

package metrocli

import (
	"os/exec"
	"syscall"
)

// detach moves the daemon to its own process group so it survives the
// CLI.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
