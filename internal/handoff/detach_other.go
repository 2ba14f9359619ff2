//go:build windows

package handoff

import (
	"os"
	"os/exec"
)

func detach(*exec.Cmd) {}

func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
