package sync

import (
	"time"

	"github.com/annel0/mca-tools/internal/eventbus"
	"github.com/annel0/mca-tools/internal/logging"
)

// SyncManager координирует работу всех компонентов репликации:
// BatchManager, SyncProducer, SyncConsumer.
type SyncManager struct {
	bm       *BatchManager
	producer *SyncProducer
	consumer *SyncConsumer
}

type SyncConfig struct {
	NodeID       string
	Bus          eventbus.EventBus
	Applier      Applier
	BatchSize    int
	FlushEvery   time.Duration
	UseGzipCompr bool
}

func NewSyncManager(cfg SyncConfig) (*SyncManager, error) {
	log := logging.GetComponentLogger("sync")

	var compressor DeltaCompressor
	if cfg.UseGzipCompr {
		compressor = NewSmartCompressor()
	} else {
		compressor = NewPassthroughCompressor()
	}

	bm := NewBatchManager(cfg.Bus, cfg.NodeID, cfg.BatchSize, cfg.FlushEvery, compressor)
	writes := newWriteLog()
	producer, err := NewSyncProducer(cfg.Bus, bm, writes)
	if err != nil {
		bm.Stop()
		return nil, err
	}

	consumer, err := NewSyncConsumer(cfg.Bus, cfg.NodeID, cfg.Applier, compressor, writes)
	if err != nil {
		producer.Stop()
		bm.Stop()
		return nil, err
	}

	log.Info("🔄 SyncManager инициализирован: node=%s, batch=%d, flush=%v, gzip=%t",
		cfg.NodeID, bm.capacity, bm.flushEvery, cfg.UseGzipCompr)

	return &SyncManager{
		bm:       bm,
		producer: producer,
		consumer: consumer,
	}, nil
}

// Stop отписывается от шины и отправляет оставшиеся правки
func (sm *SyncManager) Stop() {
	sm.producer.Stop()
	sm.consumer.Stop()
	sm.bm.Stop()
	logging.GetComponentLogger("sync").Info("🔄 SyncManager остановлен")
}
