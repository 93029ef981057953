//go:build windows

package sandbox

import "os/exec"

// Windows has no POSIX process groups; killing the top process is the best
// available approximation without job objects.

func setProcessGroup(cmd *exec.Cmd) {}

func killProcessTree(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}
