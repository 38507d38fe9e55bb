package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/program-registrations/internal/config"
	"github.com/Shivanand-hulikatti/program-registrations/internal/metrics"
)

type blockingPublisher struct {
	release chan struct{}
	got     chan Event
}

func (b *blockingPublisher) Publish(ctx context.Context, ev Event) error {
	<-b.release
	b.got <- ev
	return nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, Event) error { return errors.New("backend down") }

func TestDispatcher_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	mem := NewInMemory()
	d := NewDispatcher(mem, 16, zap.NewNop())
	for _, typ := range []string{RegistrationCreated, RegistrationCancelled, CertificateIssued} {
		d.Enqueue(Event{Type: typ, ResourceID: "r"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	require.Equal(t, []string{RegistrationCreated, RegistrationCancelled, CertificateIssued}, mem.Types())

	// Close is idempotent, and late events are dropped rather than panicking.
	require.NoError(t, d.Close(ctx))
	d.Enqueue(Event{Type: RegistrationCreated})
	require.Len(t, mem.Types(), 3)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{}), got: make(chan Event, 8)}
	d := NewDispatcher(pub, 1, zap.NewNop())

	before := testutil.ToFloat64(metrics.NotifyDropped)

	// First event is taken by the drain goroutine and blocks there; the
	// second fills the buffer; anything after that is dropped.
	d.Enqueue(Event{Type: "one"})
	require.Eventually(t, func() bool { return len(d.ch) == 0 }, time.Second, time.Millisecond)
	d.Enqueue(Event{Type: "two"})
	d.Enqueue(Event{Type: "three"})
	d.Enqueue(Event{Type: "four"})

	require.Equal(t, before+2, testutil.ToFloat64(metrics.NotifyDropped))

	close(pub.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	require.Len(t, pub.got, 2)
}

func TestDispatcher_PublishFailureIsCounted(t *testing.T) {
	before := testutil.ToFloat64(metrics.NotifyFailed)
	d := NewDispatcher(failingPublisher{}, 4, zap.NewNop())
	d.Enqueue(Event{Type: RegistrationCreated})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	require.Equal(t, before+1, testutil.ToFloat64(metrics.NotifyFailed))
}

func TestRedisPublisher(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := NewRedisClient(config.Redis{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	key := "test:events:" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	pub := NewRedisPublisher(client, key)
	ev := Event{Type: RegistrationCreated, ResourceID: "r1", RegistrationID: "g1", Status: "confirmed", OccurredAt: time.Now().UTC()}
	require.NoError(t, pub.Publish(ctx, ev))

	raw, err := client.RPop(ctx, key).Result()
	require.NoError(t, err)
	var got Event
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	require.Equal(t, ev.Type, got.Type)
	require.Equal(t, ev.RegistrationID, got.RegistrationID)
}
