package eventbus

import (
	"context"

	"github.com/annel0/mca-tools/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в log.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus, log *logging.Logger) (Subscription, error) {
	if log == nil {
		log = logging.GetComponentLogger("events")
	}
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		if ev.EventType == EventBlockChanged {
			var bc BlockChanged
			if err := ev.Decode(&bc); err == nil {
				log.Info("[EventBus] %s (%d,%d,%d) %s -> %s", ev.EventType,
					bc.Pos.X, bc.Pos.Y, bc.Pos.Z, bc.Previous, bc.Block)
				return
			}
		}
		log.Debug("[EventBus] %s %s src=%s size=%dB", ev.ID, ev.EventType, ev.Source, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	log.Debug("LoggingListener: подписка на все события активирована")
	return sub, nil
}
