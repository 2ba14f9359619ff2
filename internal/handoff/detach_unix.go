//go:build !windows

package handoff

import (
	"os"
	"os/exec"
	"syscall"
)

// detach puts the child in its own process group so it survives the
// validator and can be killed as a unit.
func detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killGroup sends SIGKILL to the process group led by pid.
func killGroup(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		p, findErr := os.FindProcess(pid)
		if findErr != nil {
			return err
		}
		return p.Kill()
	}
	return nil
}
