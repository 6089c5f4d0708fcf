package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/circuit"
)

type fakeSink struct {
	mu     sync.Mutex
	events []audit.Event
	fail   bool
}

func (f *fakeSink) Emit(_ context.Context, e audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sink down")
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeSink) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestRingBuffer_DropsOldestWhenFull(t *testing.T) {
	b := NewRingBuffer(2)
	assert.False(t, b.Enqueue(audit.Event{Reason: "1"}))
	assert.False(t, b.Enqueue(audit.Event{Reason: "2"}))
	assert.True(t, b.Enqueue(audit.Event{Reason: "3"}))

	batch := b.DequeueBatch(10)
	require.Len(t, batch, 2)
	assert.Equal(t, "2", batch[0].Reason)
	assert.Equal(t, "3", batch[1].Reason)
	assert.Equal(t, int64(1), b.Dropped())
	assert.Equal(t, 0, b.Len())
}

func TestPublisher_FlushDelivers(t *testing.T) {
	sink := &fakeSink{}
	metrics := NewMetrics(prometheus.NewRegistry())
	p := New(sink, WithMetrics(metrics))

	for range 3 {
		require.NoError(t, p.Emit(context.Background(), audit.Event{Name: audit.EventLoginFailed}))
	}

	assert.Equal(t, 3, p.Flush(context.Background()))
	assert.Equal(t, 3, sink.count())
	assert.Equal(t, 0, p.Pending())
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.Delivered))
}

func TestPublisher_FailingSinkKeepsEventsAndProbes(t *testing.T) {
	sink := &fakeSink{fail: true}
	p := New(sink, WithBreaker(circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(1))))

	for range 5 {
		require.NoError(t, p.Emit(context.Background(), audit.Event{Name: audit.EventThrottled}))
	}

	assert.Equal(t, 0, p.Flush(context.Background()))
	assert.Equal(t, 5, p.Pending(), "failed events are retained")

	sink.setFail(false)
	assert.Equal(t, 1, p.Flush(context.Background()), "open breaker allows a single probe")
	assert.Equal(t, 4, p.Flush(context.Background()), "closed breaker drains the rest")
	assert.Equal(t, 5, sink.count())
}

func TestPublisher_RunDrainsOnShutdown(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, WithFlushInterval(time.Hour))
	for range 10 {
		require.NoError(t, p.Emit(context.Background(), audit.Event{Name: audit.EventLoginSucceeded}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 10, sink.count())
}
