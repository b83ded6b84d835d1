package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func TestWakeUpFiresOnNotify(t *testing.T) {
	srv, err := StartServer(0)
	require.NoError(t, err)
	t.Cleanup(srv.Stop)

	b, err := Dial(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	woken, err := b.WakeUp(ctx, SubjectClassifyEnqueued)
	require.NoError(t, err)

	require.NoError(t, b.Notify(SubjectClassifyEnqueued))

	select {
	case <-woken:
	case <-time.After(2 * time.Second):
		t.Fatal("expected wake-up notification")
	}
}

func TestNotifyJSONRoundTrips(t *testing.T) {
	srv, err := StartServer(0)
	require.NoError(t, err)
	t.Cleanup(srv.Stop)

	b, err := Dial(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(b.Close)

	received := make(chan []byte, 1)
	sub, err := b.conn.Subscribe(SubjectTraceWritten, func(m *nats.Msg) {
		received <- m.Data
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	require.NoError(t, b.NotifyJSON(SubjectTraceWritten, map[string]string{"trace_id": "t1"}))

	select {
	case data := <-received:
		var payload map[string]string
		require.NoError(t, json.Unmarshal(data, &payload))
		require.Equal(t, "t1", payload["trace_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("expected notify payload")
	}
}
