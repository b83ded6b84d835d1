package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hiddenhistory/memctl/internal/bus"
	"github.com/hiddenhistory/memctl/internal/types"
)

func TestStoreMemoryWithoutBusStillSucceeds(t *testing.T) {
	s := newTestStore(t, embedServer(t))
	in := Input{
		Content: "nil bus should never affect the write path", CWD: t.TempDir(),
		Type: types.TypeDecision, SourceHook: "user_prompt_capture", GroupID: "proj-nobus",
	}

	out, err := s.StoreMemory(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, StatusStored, out.Status)
}

func TestStoreMemoryNotifiesBusOnEnqueue(t *testing.T) {
	srv, err := bus.StartServer(0)
	require.NoError(t, err)
	t.Cleanup(srv.Stop)

	client, err := bus.Dial(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(client.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	woken, err := client.WakeUp(ctx, bus.SubjectClassifyEnqueued)
	require.NoError(t, err)

	s := newTestStore(t, embedServer(t))
	s.SetBus(client)

	in := Input{
		Content: "the bus should fire once this lands in the classify queue", CWD: t.TempDir(),
		Type: types.TypeDecision, SourceHook: "user_prompt_capture", GroupID: "proj-bus",
	}
	out, err := s.StoreMemory(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, StatusStored, out.Status)

	select {
	case <-woken:
	case <-time.After(2 * time.Second):
		t.Fatal("classify enqueue never woke the bus subscriber")
	}
}
