//go:build unix

package main

import (
	"os/exec"
	"syscall"
)

// detach puts cmd in its own process group so it survives the terminal
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
