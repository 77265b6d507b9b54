package sync

import (
	"context"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/eventbus"
	"github.com/annel0/mca-tools/internal/logging"
)

// Applier применяет правку, пришедшую с другого узла. Правка не должна
// порождать новое BlockChanged, иначе узлы будут пересылать её по кругу.
type Applier interface {
	ApplyRemoteBlock(x, y, z int, b blockstate.Block) error
}

// SyncConsumer слушает пакеты EditBatch других узлов и применяет правки.
type SyncConsumer struct {
	sub        eventbus.Subscription
	source     string
	applier    Applier
	compressor DeltaCompressor
	resolver   ConflictResolver
	writes     *writeLog
	log        *logging.Logger
}

// NewSyncConsumer подписывается на EditBatch. writes общий с SyncProducer
// того же узла; nil отключает разрешение конфликтов.
func NewSyncConsumer(bus eventbus.EventBus, source string, applier Applier, compressor DeltaCompressor, writes *writeLog) (*SyncConsumer, error) {
	if compressor == nil {
		compressor = NewPassthroughCompressor()
	}
	sc := &SyncConsumer{
		source:     source,
		applier:    applier,
		compressor: compressor,
		resolver:   NewLWWResolver(),
		writes:     writes,
		log:        logging.GetComponentLogger("sync"),
	}
	sub, err := bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{eventbus.EventEditBatch}}, sc.handle)
	if err != nil {
		return nil, err
	}
	sc.sub = sub
	return sc, nil
}

func (sc *SyncConsumer) handle(ctx context.Context, ev *eventbus.Envelope) {
	if ev.Source == sc.source {
		return
	}

	changes, err := sc.compressor.Decompress(ev.Payload)
	if err != nil {
		sc.log.Warn("SyncConsumer decompress error: %v", err)
		return
	}

	applied := 0
	for i, ch := range changes {
		if ch.Source == "" {
			ch.Source = ev.Source
		}
		if sc.writes != nil {
			ok, err := sc.writes.admit(sc.resolver, ch)
			if err != nil || !ok {
				continue
			}
		}
		if err := sc.applier.ApplyRemoteBlock(ch.Pos.X, ch.Pos.Y, ch.Pos.Z, ch.Block); err != nil {
			sc.log.Warn("SyncConsumer: правка %d (%d,%d,%d) от %s: %v",
				i, ch.Pos.X, ch.Pos.Y, ch.Pos.Z, ev.Source, err)
			continue
		}
		applied++
	}
	sc.log.Debug("SyncConsumer: применено %d из %d правок от %s", applied, len(changes), ev.Source)
}

func (sc *SyncConsumer) Stop() { sc.sub.Unsubscribe() }
