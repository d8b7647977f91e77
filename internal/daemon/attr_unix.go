//go:build unix

package daemon

import "syscall"

// detachedAttr starts the child in its own session so it survives the
// parent's terminal hangup, the closest Go equivalent of the original
// daemon's setsid() call after its second fork.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
