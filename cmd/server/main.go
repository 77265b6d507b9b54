package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/mca-tools/internal/api"
	"github.com/annel0/mca-tools/internal/cache"
	"github.com/annel0/mca-tools/internal/config"
	"github.com/annel0/mca-tools/internal/eventbus"
	"github.com/annel0/mca-tools/internal/logging"
	"github.com/annel0/mca-tools/internal/observability"
	"github.com/annel0/mca-tools/internal/region"
	"github.com/annel0/mca-tools/internal/save"
	"github.com/annel0/mca-tools/internal/storage"
	editsync "github.com/annel0/mca-tools/internal/sync"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML-конфигурации (по умолчанию $MCA_CONFIG)")
	worldDir := flag.String("world", "", "каталог сохранения, перекрывает конфигурацию")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if *worldDir != "" {
		cfg.World.Dir = *worldDir
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	logging.Configure(cfg.Logging.Dir, level)
	for component, name := range cfg.Logging.Components {
		l, err := logging.ParseLevel(name)
		if err != nil {
			log.Fatalf("❌ logging.components.%s: %v", component, err)
		}
		if err := logging.GetLoggerManager().SetLogLevel(component, l, l); err != nil {
			log.Fatalf("❌ %v", err)
		}
	}
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	ctx := context.Background()
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled)
	if err != nil {
		logging.Error("❌ Ошибка инициализации трассировки: %v", err)
		os.Exit(1)
	}

	dir := cfg.World.GetDir()
	var opts []region.Option
	if cfg.World.CompressionLevel != 0 {
		opts = append(opts, region.WithCompressor(region.NewCompressor(cfg.World.CompressionLevel)))
	}
	world := save.OpenDir(dir, opts...)

	regions, err := world.Regions()
	if err != nil {
		logging.Error("❌ Ошибка чтения каталога регионов %s: %v", dir, err)
		os.Exit(1)
	}
	logging.Info("🗺️  Мир %s: %d регионов", dir, len(regions))

	var store *storage.SnapshotStore
	if cfg.Storage.SnapshotDir != "" {
		store, err = storage.NewSnapshotStore(cfg.Storage.GetSnapshotDir())
		if err != nil {
			logging.Error("❌ Ошибка открытия хранилища снимков: %v", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	bus, err := newEventBus(cfg.Events)
	if err != nil {
		logging.Error("❌ Ошибка подключения шины событий: %v", err)
		os.Exit(1)
	}
	defer bus.Close()
	if _, err := eventbus.StartLoggingListener(bus, nil); err != nil {
		logging.Warn("Логирование событий недоступно: %v", err)
	}

	views, err := cache.New(&cfg.Cache)
	if err != nil {
		logging.Error("❌ Ошибка подключения кэша: %v", err)
		os.Exit(1)
	}
	defer views.Close()

	registry := prometheus.NewRegistry()
	exporter := eventbus.NewMetricsExporter(bus, registry, time.Second)
	exporter.Start()
	defer exporter.Stop()

	saveDir := dir
	if cfg.Server.ReadOnly {
		saveDir = ""
	}
	nodeID := cfg.Events.GetNodeID()
	port := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	server := api.NewRestServer(api.Config{
		Port:     port,
		World:    world,
		Store:    store,
		SaveDir:  saveDir,
		ReadOnly: cfg.Server.ReadOnly,
		Registry: registry,
		Metrics:  cfg.Server.MetricsEnabled,
		Events:   bus,
		NodeID:   nodeID,
		Cache:    views,
	})

	if cfg.Events.Replicate && !cfg.Server.ReadOnly {
		replication, err := editsync.NewSyncManager(editsync.SyncConfig{
			NodeID:       nodeID,
			Bus:          bus,
			Applier:      server,
			BatchSize:    cfg.Events.BatchSize,
			FlushEvery:   cfg.Events.FlushEvery,
			UseGzipCompr: cfg.Events.Gzip,
		})
		if err != nil {
			logging.Error("❌ Ошибка запуска репликации: %v", err)
			os.Exit(1)
		}
		defer replication.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logging.Info("✅ REST API: http://localhost%s", port)
	logging.Info("   ❤️  Health check: http://localhost%s/health", port)
	if cfg.Server.ReadOnly {
		logging.Info("   🔒 Режим только для чтения")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
	case err := <-errCh:
		if err != nil {
			logging.Error("❌ Ошибка REST API: %v", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if err := shutdownTelemetry(stopCtx); err != nil {
		logging.Warn("Ошибка остановки трассировки: %v", err)
	}

	logging.Info("👋 Сервер остановлен")
}

// newEventBus подключает JetStream, если задан адрес NATS, иначе шину в памяти
func newEventBus(cfg config.EventsConfig) (eventbus.EventBus, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		return eventbus.NewMemoryBus(cfg.BufferSize), nil
	}
	bus, err := eventbus.NewJetStreamBus(url, cfg.Stream, cfg.Retention)
	if err != nil {
		return nil, err
	}
	logging.Info("📨 События публикуются в NATS %s", url)
	return bus, nil
}
