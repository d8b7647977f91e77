//go:build !unix

package daemon

import "syscall"

// detachedAttr has no session-detach equivalent on non-unix platforms.
func detachedAttr() *syscall.SysProcAttr {
	return nil
}
