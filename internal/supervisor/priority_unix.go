//go:build unix

package supervisor

import "syscall"

// setProcessPriority attempts a best-effort nice-value adjustment.
// Failure is logged by the caller, never fatal.
func setProcessPriority(niceValue int) error {
	return syscall.Setpriority(syscall.PRIO_PROCESS, 0, niceValue)
}
