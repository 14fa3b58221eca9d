//go:build unix

package catalog

import "syscall"

// isProcessRunning checks if a process with given PID is running on Unix systems
func isProcessRunning(pid int) bool {
	// Signal 0 checks that the process exists without signalling it
	err := syscall.Kill(pid, syscall.Signal(0))
	if err == nil {
		return true
	}

	if err == syscall.ESRCH {
		// No such process
		return false
	}

	if err == syscall.EPERM {
		// The process exists but belongs to someone else
		return true
	}

	return false
}
