package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/cache"
	"github.com/annel0/mca-tools/internal/chunk"
	"github.com/annel0/mca-tools/internal/eventbus"
	"github.com/annel0/mca-tools/internal/logging"
	"github.com/annel0/mca-tools/internal/middleware"
	"github.com/annel0/mca-tools/internal/nbt"
	"github.com/annel0/mca-tools/internal/observability"
	"github.com/annel0/mca-tools/internal/region"
	"github.com/annel0/mca-tools/internal/save"
	"github.com/annel0/mca-tools/internal/storage"
	"github.com/annel0/mca-tools/internal/vec"
)

// serviceName пространство имён метрик и имя сервиса в трассировке
const serviceName = "mca_api"

// CacheHeader заголовок ответа: HIT или MISS кэша представлений
const CacheHeader = "X-Cache"

const jsonContentType = "application/json; charset=utf-8"

// RestServer представляет REST API сервер над миром
type RestServer struct {
	router     *gin.Engine
	httpServer *http.Server
	port       string
	readOnly   bool
	saveDir    string

	// mu сериализует доступ к миру: контейнеры и чанки не потокобезопасны
	mu    sync.Mutex
	world *save.World
	store *storage.SnapshotStore

	events       eventbus.EventBus
	nodeID       string
	views        cache.CacheRepo
	metrics      *ServerMetrics
	worldMetrics *WorldMetrics
	log          *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string                 // порт для запуска сервера
	World    *save.World            // открытый мир
	Store    *storage.SnapshotStore // хранилище снимков, может быть nil
	SaveDir  string                 // каталог для POST /api/save, пустой отключает сохранение
	ReadOnly bool                   // запрет изменяющих запросов
	Registry *prometheus.Registry   // регистр метрик, nil создаёт новый
	Metrics  bool                   // включить /metrics
	Events   eventbus.EventBus      // шина событий правки, может быть nil
	NodeID   string                 // источник событий, по умолчанию имя сервиса
	Cache    cache.CacheRepo        // кэш представлений чанков, nil создаёт кэш в памяти
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.NodeID == "" {
		config.NodeID = serviceName
	}
	if config.Cache == nil {
		config.Cache = cache.NewMemoryCache(0)
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	log := logging.GetAPILogger()

	// === Observability middleware ===
	router.Use(otelgin.Middleware(serviceName))

	loggerMw := middleware.NewRequestLogger(log)
	router.Use(loggerMw.Handler())

	promMw := middleware.NewPrometheusMiddleware(serviceName, config.Registry)
	router.Use(promMw.Handler())
	if config.Metrics {
		promMw.RegisterMetricsEndpoint(router, config.Registry)
	}

	server := &RestServer{
		router:       router,
		port:         config.Port,
		readOnly:     config.ReadOnly,
		saveDir:      config.SaveDir,
		world:        config.World,
		store:        config.Store,
		events:       config.Events,
		nodeID:       config.NodeID,
		views:        config.Cache,
		metrics:      NewServerMetrics(),
		worldMetrics: NewWorldMetrics(serviceName, config.Registry),
		log:          log,
	}

	// Настраиваем маршруты
	server.setupRoutes()

	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.Use(corsMiddleware())

	// Группа API
	api := rs.router.Group("/api")
	{
		api.GET("/server", rs.handleServerInfo)
		api.GET("/level", rs.handleLevel)
		api.GET("/regions", rs.handleRegions)
		api.GET("/regions/:x/:z/chunks", rs.handleRegionChunks)
		api.GET("/block", rs.handleGetBlock)
		api.GET("/chunk/:x/:z", rs.handleChunk)
		api.GET("/chunk/:x/:z/blocks", rs.handleChunkBlocks)
		api.GET("/export", rs.handleExport)
		api.GET("/snapshots", rs.handleSnapshots)
	}

	// Изменяющие эндпоинты
	write := api.Group("/")
	write.Use(rs.readOnlyMiddleware())
	{
		write.PUT("/block", rs.handleSetBlock)
		write.POST("/save", rs.handleSave)
		write.POST("/snapshots/chunk/:x/:z", rs.handleSnapshotChunk)
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// Handler возвращает http.Handler сервера
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SetBlockRequest представляет запрос на запись блока
type SetBlockRequest struct {
	X          *int              `json:"x" binding:"required"`
	Y          *int              `json:"y" binding:"required"`
	Z          *int              `json:"z" binding:"required"`
	Name       string            `json:"name" binding:"required"`
	Properties map[string]string `json:"properties"`
}

// errorStatus сопоставляет ошибку мира HTTP-статусу
func errorStatus(err error) int {
	switch {
	case errors.Is(err, save.ErrRegionNotFound),
		errors.Is(err, region.ErrChunkNotPresent),
		errors.Is(err, chunk.ErrSectionNotPresent),
		errors.Is(err, nbt.ErrPathNotFound):
		return http.StatusNotFound
	case errors.Is(err, region.ErrCoordinateOutOfRegion):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (rs *RestServer) fail(c *gin.Context, status int, message string) {
	if status >= http.StatusInternalServerError {
		rs.log.Error("%s %s: %s", c.Request.Method, c.Request.URL.Path, message)
	}
	c.JSON(status, GenericResponse{Success: false, Message: message})
}

func (rs *RestServer) failErr(c *gin.Context, err error) {
	rs.fail(c, errorStatus(err), err.Error())
}

// intParams разбирает целочисленные параметры запроса или пути
func intParams(get func(string) string, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		v, err := strconv.Atoi(get(name))
		if err != nil {
			return nil, fmt.Errorf("параметр %s: ожидается целое число", name)
		}
		out[i] = v
	}
	return out, nil
}

// handleGetBlock возвращает блок по мировым координатам
func (rs *RestServer) handleGetBlock(c *gin.Context) {
	xyz, err := intParams(c.Query, "x", "y", "z")
	if err != nil {
		rs.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	rs.mu.Lock()
	b, err := rs.world.GetBlock(xyz[0], xyz[1], xyz[2])
	rs.mu.Unlock()
	if err != nil {
		rs.failErr(c, err)
		return
	}

	rs.worldMetrics.blockReads.Inc()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Блок получен",
		Data:    b,
	})
}

// handleSetBlock записывает блок по мировым координатам
func (rs *RestServer) handleSetBlock(c *gin.Context) {
	var req SetBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	b := blockstate.Block{Name: req.Name, Properties: req.Properties}
	_, span := observability.StartSpan(c.Request.Context(), "world.set_block")
	span.SetAttributes(
		attribute.Int("x", *req.X), attribute.Int("y", *req.Y), attribute.Int("z", *req.Z),
		attribute.String("block", b.String()),
	)
	defer span.End()

	pos := vec.Vec3{X: *req.X, Y: *req.Y, Z: *req.Z}
	cpos := pos.ChunkCoords()

	rs.mu.Lock()
	prev, err := rs.world.GetBlock(pos.X, pos.Y, pos.Z)
	if err == nil {
		err = rs.world.SetBlock(pos.X, pos.Y, pos.Z, b)
	}
	if err == nil {
		if cerr := rs.views.DeletePrefix(c.Request.Context(), cache.ChunkViewPrefix(cpos.X, cpos.Z)); cerr != nil {
			rs.log.Warn("сброс кэша чанка %d,%d: %v", cpos.X, cpos.Z, cerr)
		}
	}
	rs.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		rs.failErr(c, err)
		return
	}

	rs.worldMetrics.blockWrites.Inc()
	rs.log.Info("🧱 %s -> (%d, %d, %d)", b, *req.X, *req.Y, *req.Z)
	rs.publish(c.Request.Context(), eventbus.EventBlockChanged, eventbus.BlockChanged{
		Pos:      pos,
		Block:    b,
		Previous: prev,
	})
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Блок записан",
		Data:    b,
	})
}

// handleRegions возвращает список файлов регионов
func (rs *RestServer) handleRegions(c *gin.Context) {
	rs.mu.Lock()
	regions, err := rs.world.Regions()
	rs.mu.Unlock()
	if err != nil {
		rs.failErr(c, err)
		return
	}

	list := make([]map[string]interface{}, 0, len(regions))
	for _, r := range regions {
		list = append(list, map[string]interface{}{
			"x":    r.Coords.X,
			"z":    r.Coords.Z,
			"path": r.Path,
		})
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список регионов получен",
		Data: map[string]interface{}{
			"regions": list,
			"total":   len(list),
		},
	})
}

// handleRegionChunks возвращает координаты чанков региона
func (rs *RestServer) handleRegionChunks(c *gin.Context) {
	xz, err := intParams(c.Param, "x", "z")
	if err != nil {
		rs.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	container, ok, err := rs.world.Region(xz[0], xz[1])
	if err != nil {
		rs.failErr(c, err)
		return
	}
	if !ok {
		rs.failErr(c, fmt.Errorf("region %d,%d: %w", xz[0], xz[1], save.ErrRegionNotFound))
		return
	}

	chunks := container.Chunks()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список чанков получен",
		Data: map[string]interface{}{
			"chunks": chunks,
			"total":  len(chunks),
		},
	})
}

// chunkAt возвращает чанк по координатам чанка. Вызывается под rs.mu.
func (rs *RestServer) chunkAt(x, z int) (*chunk.Chunk, error) {
	container, ok, err := rs.world.RegionAt(x*16, z*16)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("chunk %d,%d: %w", x, z, save.ErrRegionNotFound)
	}
	ch, ok, err := container.GetChunk(x, z)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("chunk %d,%d: %w", x, z, region.ErrChunkNotPresent)
	}
	return ch, nil
}

// handleChunk возвращает дерево чанка (или поддерево по ?path=) в виде JSON
func (rs *RestServer) handleChunk(c *gin.Context) {
	xz, err := intParams(c.Param, "x", "z")
	if err != nil {
		rs.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	path := c.Query("path")
	key := cache.ChunkViewKey(xz[0], xz[1], path)
	ctx := c.Request.Context()

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if view, err := rs.views.Get(ctx, key); err == nil {
		c.Header(CacheHeader, "HIT")
		c.Data(http.StatusOK, jsonContentType, view)
		return
	}

	ch, err := rs.chunkAt(xz[0], xz[1])
	if err != nil {
		rs.failErr(c, err)
		return
	}
	root, err := ch.ChunkData()
	if err != nil {
		rs.failErr(c, err)
		return
	}

	tag := root
	if path != "" {
		var ok bool
		if tag, ok = nbt.Find(root, path); !ok {
			rs.failErr(c, fmt.Errorf("%s: %w", path, nbt.ErrPathNotFound))
			return
		}
	}

	view, err := json.Marshal(GenericResponse{
		Success: true,
		Message: "Чанк получен",
		Data: map[string]interface{}{
			"name":  tag.Name,
			"kind":  tag.Kind().String(),
			"value": nbt.Simplify(tag.Payload),
		},
	})
	if err != nil {
		rs.failErr(c, err)
		return
	}
	if err := rs.views.Set(ctx, key, view, 0); err != nil {
		rs.log.Warn("кэш %s: %v", key, err)
	}
	c.Header(CacheHeader, "MISS")
	c.Data(http.StatusOK, jsonContentType, view)
}

// handleChunkBlocks возвращает имена блоков чанка или координаты блоков ?name=
func (rs *RestServer) handleChunkBlocks(c *gin.Context) {
	xz, err := intParams(c.Param, "x", "z")
	if err != nil {
		rs.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	ch, err := rs.chunkAt(xz[0], xz[1])
	if err != nil {
		rs.failErr(c, err)
		return
	}

	if name := c.Query("name"); name != "" {
		found, err := ch.FindBlocksByName(name)
		if err != nil {
			rs.failErr(c, err)
			return
		}
		rs.worldMetrics.blockReads.Add(float64(len(found)))
		c.JSON(http.StatusOK, GenericResponse{
			Success: true,
			Message: "Поиск выполнен",
			Data: map[string]interface{}{
				"positions": found,
				"total":     len(found),
			},
		})
		return
	}

	names, err := ch.UniqueBlockNames()
	if err != nil {
		rs.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Имена блоков получены",
		Data:    map[string]interface{}{"names": names},
	})
}

// handleLevel возвращает level.dat в виде JSON
func (rs *RestServer) handleLevel(c *gin.Context) {
	rs.mu.Lock()
	level, err := rs.world.Level()
	rs.mu.Unlock()
	if err != nil {
		rs.fail(c, http.StatusNotFound, err.Error())
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "level.dat получен",
		Data:    nbt.Simplify(level.Payload),
	})
}

// handleExport отдаёт мир с изменениями в виде zip-архива
func (rs *RestServer) handleExport(c *gin.Context) {
	_, span := observability.StartSpan(c.Request.Context(), "world.export")
	defer span.End()

	start := time.Now()
	name := fmt.Sprintf("world-%s.zip", uuid.NewString())
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Status(http.StatusOK)

	rs.mu.Lock()
	err := rs.world.ExportZip(c.Writer)
	rs.mu.Unlock()
	if err != nil {
		// заголовки уже отправлены, остаётся записать ошибку в лог
		span.RecordError(err)
		rs.log.Error("экспорт %s: %v", name, err)
		return
	}

	rs.worldMetrics.exports.Inc()
	rs.worldMetrics.exportDuration.Observe(time.Since(start).Seconds())
	rs.publish(c.Request.Context(), eventbus.EventWorldExported, eventbus.WorldExported{Name: name})
}

// handleSave записывает изменённые регионы в каталог сохранения
func (rs *RestServer) handleSave(c *gin.Context) {
	if rs.saveDir == "" {
		rs.fail(c, http.StatusServiceUnavailable, "Каталог сохранения не задан")
		return
	}

	rs.mu.Lock()
	paths, err := rs.world.Save(rs.saveDir)
	rs.mu.Unlock()
	if err != nil {
		rs.failErr(c, err)
		return
	}

	rs.publish(c.Request.Context(), eventbus.EventRegionsSaved, eventbus.RegionsSaved{Dir: rs.saveDir, Paths: paths})
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Мир сохранён",
		Data:    map[string]interface{}{"files": paths},
	})
}

// handleSnapshotChunk сохраняет снимок чанка в хранилище
func (rs *RestServer) handleSnapshotChunk(c *gin.Context) {
	if rs.store == nil {
		rs.fail(c, http.StatusServiceUnavailable, "Хранилище снимков не настроено")
		return
	}
	xz, err := intParams(c.Param, "x", "z")
	if err != nil {
		rs.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	ch, err := rs.chunkAt(xz[0], xz[1])
	if err != nil {
		rs.failErr(c, err)
		return
	}
	meta, err := rs.store.SaveChunk(ch)
	if err != nil {
		rs.failErr(c, err)
		return
	}

	rs.worldMetrics.snapshots.WithLabelValues(meta.Kind).Inc()
	rs.publish(c.Request.Context(), eventbus.EventSnapshotTaken, eventbus.SnapshotTaken{ID: meta.ID, Key: meta.Key})
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Снимок сохранён",
		Data:    meta,
	})
}

// handleSnapshots возвращает ключи снимков с префиксом ?prefix=
func (rs *RestServer) handleSnapshots(c *gin.Context) {
	if rs.store == nil {
		rs.fail(c, http.StatusServiceUnavailable, "Хранилище снимков не настроено")
		return
	}

	keys, err := rs.store.Keys(c.Query("prefix"))
	if err != nil {
		rs.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список снимков получен",
		Data: map[string]interface{}{
			"keys":  keys,
			"total": len(keys),
		},
	})
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	rs.mu.Lock()
	modified := rs.world.Modified()
	rs.mu.Unlock()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере получена",
		Data: map[string]interface{}{
			"uptime":           rs.metrics.GetUptime(),
			"memory":           rs.metrics.GetDetailedMemoryStats(),
			"cpu":              rs.metrics.cpuStats(),
			"cache":            rs.views.GetMetrics(),
			"read_only":        rs.readOnly,
			"modified_regions": modified,
			"snapshots":        rs.store != nil,
		},
	})
}

// ApplyRemoteBlock записывает правку, пришедшую с другого узла.
// В отличие от PUT /api/block событие BlockChanged не публикуется.
func (rs *RestServer) ApplyRemoteBlock(x, y, z int, b blockstate.Block) error {
	cpos := vec.Vec3{X: x, Y: y, Z: z}.ChunkCoords()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.world.SetBlock(x, y, z, b); err != nil {
		return err
	}
	rs.worldMetrics.blockWrites.Inc()
	return rs.views.DeletePrefix(context.Background(), cache.ChunkViewPrefix(cpos.X, cpos.Z))
}

// publish отправляет событие правки в шину, если она задана.
// Ошибка публикации не влияет на ответ.
func (rs *RestServer) publish(ctx context.Context, eventType string, payload any) {
	if rs.events == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(rs.nodeID, eventType, payload)
	if err == nil {
		err = rs.events.Publish(ctx, ev)
	}
	if err != nil {
		rs.log.Warn("событие %s не опубликовано: %v", eventType, err)
	}
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Start запускает REST сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	rs.httpServer = &http.Server{
		Addr:              rs.port,
		Handler:           rs.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	rs.log.Info("🌐 REST API слушает %s", rs.port)
	if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает REST сервер, дожидаясь завершения активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.httpServer == nil {
		return nil
	}
	return rs.httpServer.Shutdown(ctx)
}
