package sync

import (
	"context"

	"github.com/annel0/mca-tools/internal/eventbus"
)

// SyncProducer подписывается на правки своего узла и передаёт их BatchManager'у.
type SyncProducer struct {
	bm     *BatchManager
	writes *writeLog
	sub    eventbus.Subscription
}

func NewSyncProducer(bus eventbus.EventBus, bm *BatchManager, writes *writeLog) (*SyncProducer, error) {
	sp := &SyncProducer{bm: bm, writes: writes}
	filter := eventbus.Filter{Types: []string{eventbus.EventBlockChanged}, Sources: []string{bm.source}}
	sub, err := bus.Subscribe(context.Background(), filter, sp.handle)
	if err != nil {
		return nil, err
	}
	sp.sub = sub
	return sp, nil
}

func (sp *SyncProducer) handle(ctx context.Context, ev *eventbus.Envelope) {
	var bc eventbus.BlockChanged
	if err := ev.Decode(&bc); err != nil {
		sp.bm.log.Warn("SyncProducer: %s: %v", ev.ID, err)
		return
	}
	ch := Change{Pos: bc.Pos, Block: bc.Block, Timestamp: ev.Timestamp, Source: ev.Source}
	if sp.writes != nil {
		sp.writes.record(ch)
	}
	sp.bm.AddChange(ch)
}

func (sp *SyncProducer) Stop() { sp.sub.Unsubscribe() }
