// Package bus is the optional wake-up signal described in spec section
// 9.4: every daemon loop in internal/daemon already works correctly on
// its own ticker-driven poll, since files and the vector store are the
// only durable coordination (spec section 9). Bus exists purely to
// shave the poll latency down for a local single-process deployment —
// an embedded NATS server plus a thin pub/sub wrapper, grounded on
// ODSapper-CLIAIRMONITOR's cmd/cliairmonitor/main.go embedded-server
// pattern and its internal/nats/client.go wrapper. Nothing in this
// package is ever load-bearing: a subscriber that never arrives just
// means the affected daemon falls back to its normal poll interval.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	nserver "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
)

// Subjects a daemon wakes up on when something it cares about changed.
const (
	SubjectClassifyEnqueued = "memctl.classify.enqueued"
	SubjectRetryEnqueued    = "memctl.retry.enqueued"
	SubjectTraceWritten     = "memctl.trace.written"
)

// Server is an embedded, in-process NATS server — no external broker
// to stand up for a single-machine install, matching
// CLIAIRMONITOR's "start an embedded NATS server, hand agents the
// loopback URL" shape.
type Server struct {
	ns *nserver.Server
}

// StartServer launches an embedded NATS server on port (0 picks a free
// port) and blocks until it is ready to accept connections or ready
// times out.
func StartServer(port int) (*Server, error) {
	ns, err := nserver.NewServer(&nserver.Options{
		Port:     port,
		HTTPPort: -1,
		NoLog:    true,
		NoSigs:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("bus: failed to create embedded NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("bus: embedded NATS server did not become ready")
	}
	return &Server{ns: ns}, nil
}

// ClientURL returns the loopback address clients in this process
// should dial.
func (s *Server) ClientURL() string {
	return s.ns.ClientURL()
}

// Stop shuts the embedded server down, draining in-flight messages.
func (s *Server) Stop() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}

// Bus wraps a NATS connection with the narrow publish/subscribe
// surface memctl's daemons need: wake-up notifications, not a general
// message broker.
type Bus struct {
	conn *nats.Conn
}

// Dial connects to url (typically an embedded Server's ClientURL).
func Dial(url string) (*Bus, error) {
	conn, err := nats.Connect(url,
		nats.Name("memctl"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect failed: %w", err)
	}
	return &Bus{conn: conn}, nil
}

// Close closes the underlying connection.
func (b *Bus) Close() {
	b.conn.Close()
}

// Notify publishes an empty wake-up message on subject. Enqueue paths
// call this after a successful write so a daemon blocked on its
// subscription wakes immediately instead of waiting for its next poll.
func (b *Bus) Notify(subject string) error {
	if err := b.conn.Publish(subject, nil); err != nil {
		return fmt.Errorf("bus: publish %s failed: %w", subject, err)
	}
	return nil
}

// NotifyJSON publishes a JSON-encoded payload on subject, for wake-ups
// that want to carry a hint (e.g. which trace ID just completed).
func (b *Bus) NotifyJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus: marshal failed: %w", err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("bus: publish %s failed: %w", subject, err)
	}
	return nil
}

// WakeUp returns a channel that receives a value every time subject is
// published to. The channel holds one pending wake-up and is lossy: a
// publish that arrives while a wake-up is already pending is dropped,
// so a daemon that's mid-pass picks up a single wake-up on its next
// receive, since its normal poll ticker is the correctness backstop,
// not this channel.
func (b *Bus) WakeUp(ctx context.Context, subject string) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)
	sub, err := b.conn.Subscribe(subject, func(*nats.Msg) {
		select {
		case out <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe %s failed: %w", subject, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return out, nil
}
