package eventbus

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/logging"
	"github.com/annel0/mca-tools/internal/vec"
)

func blockEvent(t *testing.T) *Envelope {
	t.Helper()
	ev, err := NewEnvelope("test", EventBlockChanged, BlockChanged{
		Pos:      vec.Vec3{X: 600, Y: 50, Z: 600},
		Block:    blockstate.Block{Name: "minecraft:diamond_ore"},
		Previous: blockstate.Air,
	})
	require.NoError(t, err)
	return ev
}

func TestEnvelopeDecode(t *testing.T) {
	ev := blockEvent(t)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, EventBlockChanged, ev.EventType)

	var bc BlockChanged
	require.NoError(t, ev.Decode(&bc))
	assert.Equal(t, 600, bc.Pos.X)
	assert.Equal(t, "minecraft:diamond_ore", bc.Block.Name)
}

func TestMemoryBusFilter(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	got := make(chan *Envelope, 4)
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventBlockChanged}},
		func(ctx context.Context, ev *Envelope) { got <- ev })
	require.NoError(t, err)

	saved, err := NewEnvelope("test", EventRegionsSaved, RegionsSaved{Paths: []string{"region/r.0.0.mca"}})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), saved))
	require.NoError(t, bus.Publish(context.Background(), blockEvent(t)))

	select {
	case ev := <-got:
		assert.Equal(t, EventBlockChanged, ev.EventType)
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
	}

	assert.Eventually(t, func() bool {
		s := bus.Metrics()
		return s.Published == 2 && s.Consumed == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, got)
}

func TestMemoryBusUnsubscribeAndClose(t *testing.T) {
	bus := NewMemoryBus(16)

	var mu sync.Mutex
	count := 0
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), blockEvent(t)))
	assert.Eventually(t, func() bool { return bus.Metrics().InFlight == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Close())
	mu.Lock()
	assert.Equal(t, 0, count)
	mu.Unlock()

	assert.ErrorIs(t, bus.Publish(context.Background(), blockEvent(t)), ErrBusClosed)
	require.NoError(t, bus.Close())
}

func TestMemoryBusDropsLowPriorityWhenFull(t *testing.T) {
	bus := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, 1),
		quit:        make(chan struct{}),
	}

	require.NoError(t, bus.Publish(context.Background(), blockEvent(t)))
	require.NoError(t, bus.Publish(context.Background(), blockEvent(t)))
	assert.Equal(t, uint64(1), bus.Metrics().Dropped)

	high := blockEvent(t)
	high.Priority = 9
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bus.Publish(ctx, high), context.Canceled)
}

// syncBuffer буфер, безопасный для записи из обработчиков
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoggingListener(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	out := &syncBuffer{}
	_, err := StartLoggingListener(bus, logging.NewConsoleLogger("events", out, logging.INFO))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), blockEvent(t)))
	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("(600,50,600) minecraft:air -> minecraft:diamond_ore"))
	}, time.Second, 5*time.Millisecond)
}

func TestMetricsExporter(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	reg := prometheus.NewRegistry()
	exp := NewMetricsExporter(bus, reg, 5*time.Millisecond)
	exp.Start()

	require.NoError(t, bus.Publish(context.Background(), blockEvent(t)))
	require.NoError(t, bus.Publish(context.Background(), blockEvent(t)))
	exp.Stop()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var published float64
	for _, mf := range mfs {
		if mf.GetName() == "mca_events_messages_published_total" {
			published = mf.Metric[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), published)
}
