//go:build !unix

package supervisor

import "fmt"

// setProcessPriority is a no-op on platforms without a nice-value
// syscall; the hint is best-effort everywhere.
func setProcessPriority(niceValue int) error {
	return fmt.Errorf("supervisor: process priority hint unsupported on this platform")
}
