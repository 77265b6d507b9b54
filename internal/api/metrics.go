package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// defaultCPUSample интервал замера загрузки системы
const defaultCPUSample = 200 * time.Millisecond

// ServerMetrics время работы, память и загрузка CPU процесса редактора
type ServerMetrics struct {
	StartTime time.Time
	// CPUSample интервал, за который усредняется загрузка системы
	CPUSample time.Duration

	proc *process.Process
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	sm := &ServerMetrics{
		StartTime: time.Now(),
		CPUSample: defaultCPUSample,
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		sm.proc = proc
	}
	return sm
}

// GetUptime возвращает время работы сервера
func (sm *ServerMetrics) GetUptime() string {
	uptime := time.Since(sm.StartTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	} else if hours > 0 {
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	} else {
		return fmt.Sprintf("%dс", seconds)
	}
}

// GetCPUUsage загрузка CPU процессом в процентах. Если метрика процесса
// недоступна, возвращается загрузка системы.
func (sm *ServerMetrics) GetCPUUsage() (float64, error) {
	if sm.proc != nil {
		if percent, err := sm.proc.CPUPercent(); err == nil {
			return percent, nil
		}
	}
	return sm.GetSystemCPUUsage()
}

// GetSystemCPUUsage общая загрузка CPU системы за CPUSample
func (sm *ServerMetrics) GetSystemCPUUsage() (float64, error) {
	percents, err := cpu.Percent(sm.CPUSample, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("cpu: нет данных")
	}
	return percents[0], nil
}

// cpuStats загрузка процесса и системы для /api/server; недоступные значения равны 0
func (sm *ServerMetrics) cpuStats() map[string]interface{} {
	processCPU, err := sm.GetCPUUsage()
	if err != nil {
		processCPU = 0
	}
	systemCPU, err := sm.GetSystemCPUUsage()
	if err != nil {
		systemCPU = 0
	}
	return map[string]interface{}{
		"process_percent": processCPU,
		"system_percent":  systemCPU,
		"cores":           runtime.NumCPU(),
	}
}

// GetDetailedMemoryStats возвращает детальную статистику памяти
func (sm *ServerMetrics) GetDetailedMemoryStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"alloc_mb":       float64(m.Alloc) / 1024 / 1024,
		"total_alloc_mb": float64(m.TotalAlloc) / 1024 / 1024,
		"sys_mb":         float64(m.Sys) / 1024 / 1024,
		"heap_alloc_mb":  float64(m.HeapAlloc) / 1024 / 1024,
		"num_gc":         m.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	}
}

// WorldMetrics счётчики операций с миром
type WorldMetrics struct {
	blockReads     prometheus.Counter
	blockWrites    prometheus.Counter
	exports        prometheus.Counter
	exportDuration prometheus.Histogram
	snapshots      *prometheus.CounterVec
}

// NewWorldMetrics создаёт метрики и регистрирует их в reg
func NewWorldMetrics(service string, reg prometheus.Registerer) *WorldMetrics {
	wm := &WorldMetrics{
		blockReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: service,
			Name:      "block_reads_total",
			Help:      "Число прочитанных блоков.",
		}),
		blockWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: service,
			Name:      "block_writes_total",
			Help:      "Число записанных блоков.",
		}),
		exports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: service,
			Name:      "exports_total",
			Help:      "Число выгрузок мира в архив.",
		}),
		exportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "export_duration_seconds",
			Help:      "Длительность выгрузки мира.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "snapshots_total",
			Help:      "Число сохранённых снимков по видам.",
		}, []string{"kind"}),
	}

	reg.MustRegister(wm.blockReads, wm.blockWrites, wm.exports, wm.exportDuration, wm.snapshots)
	return wm
}
