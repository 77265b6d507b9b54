package sync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/eventbus"
	"github.com/annel0/mca-tools/internal/logging"
	"github.com/annel0/mca-tools/internal/vec"
)

// Change одна правка блока для репликации
type Change struct {
	Pos       vec.Vec3         `json:"pos"`
	Block     blockstate.Block `json:"block"`
	Timestamp time.Time        `json:"timestamp"`
	Source    string           `json:"source,omitempty"`
}

// BatchManager накапливает правки и отправляет их пакетами EditBatch через EventBus.
// Повторная правка той же позиции заменяет предыдущую в буфере.
type BatchManager struct {
	mu       sync.Mutex
	buf      []Change
	index    map[vec.Vec3]int
	capacity int

	flushEvery time.Duration
	bus        eventbus.EventBus
	source     string // идентификатор узла
	compressor DeltaCompressor
	log        *logging.Logger

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewBatchManager создаёт менеджер с указанным лимитом буфера и интервалом отправки.
func NewBatchManager(bus eventbus.EventBus, source string, capacity int, flushEvery time.Duration, compressor DeltaCompressor) *BatchManager {
	if compressor == nil {
		compressor = NewPassthroughCompressor()
	}
	if capacity <= 0 {
		capacity = 256
	}
	if flushEvery <= 0 {
		flushEvery = time.Second
	}
	bm := &BatchManager{
		index:      make(map[vec.Vec3]int),
		capacity:   capacity,
		flushEvery: flushEvery,
		bus:        bus,
		source:     source,
		compressor: compressor,
		log:        logging.GetComponentLogger("sync"),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go bm.loop()
	return bm
}

// AddChange добавляет правку в буфер. Заполненный буфер отправляется сразу.
func (bm *BatchManager) AddChange(ch Change) {
	bm.mu.Lock()
	if i, ok := bm.index[ch.Pos]; ok {
		bm.buf[i] = ch
		bm.mu.Unlock()
		return
	}
	bm.index[ch.Pos] = len(bm.buf)
	bm.buf = append(bm.buf, ch)
	full := len(bm.buf) >= bm.capacity
	bm.mu.Unlock()

	if full {
		bm.flush()
	}
}

func (bm *BatchManager) loop() {
	ticker := time.NewTicker(bm.flushEvery)
	defer ticker.Stop()
	defer close(bm.done)

	for {
		select {
		case <-ticker.C:
			bm.flush()
		case <-bm.quit:
			return
		}
	}
}

// take забирает содержимое буфера
func (bm *BatchManager) take() []Change {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if len(bm.buf) == 0 {
		return nil
	}
	changes := bm.buf
	bm.buf = nil
	bm.index = make(map[vec.Vec3]int)
	return changes
}

// flush отсылает накопленные правки единым сообщением.
func (bm *BatchManager) flush() {
	changes := bm.take()
	if len(changes) == 0 {
		return
	}

	payload, err := bm.compressor.Compress(changes)
	if err != nil {
		bm.log.Warn("BatchManager compress error: %v", err)
		return
	}

	env := &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    bm.source,
		EventType: eventbus.EventEditBatch,
		Priority:  5,
		Payload:   payload,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := bm.bus.Publish(ctx, env); err != nil {
		bm.log.Warn("BatchManager publish error: %v", err)
		return
	}
	bm.log.Debug("отправлен пакет из %d правок (%d байт)", len(changes), len(payload))
}

// Stop завершает работу менеджера и отправляет оставшиеся правки.
func (bm *BatchManager) Stop() {
	bm.stopOnce.Do(func() {
		close(bm.quit)
		<-bm.done
		bm.flush()
	})
}
