// Package procutil provides the "fork a detached background worker and
// return immediately" primitive write-side hooks rely on (spec section
// 4.4 step 3): spawn with start_new_session semantics, pipe a payload
// to its stdin, close stdin, and don't wait.
package procutil

import (
	"os/exec"
	"syscall"
)

// DetachedAttr returns a SysProcAttr that puts the child in its own
// session (equivalent to Python's start_new_session=True), so it
// survives the parent hook process exiting.
func DetachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// SpawnDetached starts cmd in its own session and returns immediately
// without waiting. Broken-pipe errors from a subsequent stdin write are
// the caller's responsibility to tolerate (spec section 4.4 step 3).
func SpawnDetached(cmd *exec.Cmd) error {
	cmd.SysProcAttr = DetachedAttr()
	return cmd.Start()
}
