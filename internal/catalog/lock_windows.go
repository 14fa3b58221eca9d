//go:build windows

package catalog

import "syscall"

// isProcessRunning checks if a process with given PID is running on Windows
func isProcessRunning(pid int) bool {
	const da = syscall.STANDARD_RIGHTS_READ | syscall.PROCESS_QUERY_INFORMATION | syscall.SYNCHRONIZE

	h, err := syscall.OpenProcess(da, false, uint32(pid))
	if err != nil {
		// Cannot open process - it doesn't exist or we don't have permission
		return false
	}
	syscall.CloseHandle(h)
	return true
}
