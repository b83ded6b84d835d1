package metrics

import (
	"os/exec"
	"time"

	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/hiddenhistory/memctl/internal/procutil"
)

// Pusher pushes the registry to an external gateway. Hooks never call
// Push synchronously; use PushDetached so the call happens in a
// background child process and the hook returns immediately (spec
// section 4.10: "pushed to an external push gateway by a detached,
// fire-and-forget child process per observation").
type Pusher struct {
	gatewayURL string
	job        string
}

func NewPusher(gatewayURL, job string) *Pusher {
	return &Pusher{gatewayURL: gatewayURL, job: job}
}

// Push synchronously pushes the current registry. Used directly by
// daemons, which are already long-lived and don't need to fork.
func (p *Pusher) Push() error {
	return push.New(p.gatewayURL, p.job).
		Gatherer(Registry).
		Push()
}

// PushDetached re-execs the current binary with a hidden internal
// subcommand that performs one Push() call, in a detached process
// group, so the caller never waits on network I/O. self is the path to
// the current executable (os.Executable()).
func PushDetached(self, gatewayURL, job string) {
	cmd := exec.Command(self, "internal-push-metrics", "--gateway", gatewayURL, "--job", job)
	// Best effort: a failed fork never blocks or fails the caller.
	_ = procutil.SpawnDetached(cmd)
	go func() {
		// Reap without blocking the caller's own exit path.
		done := make(chan struct{})
		go func() { _ = cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}()
}
