//go:build windows

package pipeline

import "os"

func signalGroup(pid int, _ bool) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Kill()
}
