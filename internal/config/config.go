package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/mca-tools/internal/cache"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	World     WorldConfig       `yaml:"world"`
	Server    ServerConfig      `yaml:"server"`
	Storage   StorageConfig     `yaml:"storage"`
	Logging   LoggingConfig     `yaml:"logging"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	Events    EventsConfig      `yaml:"events"`
	Cache     cache.CacheConfig `yaml:"cache"`
}

type WorldConfig struct {
	Dir string `yaml:"dir"`
	// Уровень zlib для перезаписываемых чанков, 0 означает уровень по умолчанию
	CompressionLevel int `yaml:"compression_level"`
}

type ServerConfig struct {
	RESTPort       int  `yaml:"rest_port"`
	MetricsEnabled bool `yaml:"metrics_enabled"`
	ReadOnly       bool `yaml:"read_only"`
}

type StorageConfig struct {
	SnapshotDir string `yaml:"snapshot_dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	// Уровни отдельных компонентов (region, save, storage, api и т.д.)
	Components map[string]string `yaml:"components"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// EventsConfig шина событий правки. Без nats_url используется шина в памяти.
type EventsConfig struct {
	NATSURL    string        `yaml:"nats_url"`
	Stream     string        `yaml:"stream"`
	Retention  time.Duration `yaml:"retention"`
	BufferSize int           `yaml:"buffer_size"`

	// Репликация правок между узлами через шину
	NodeID     string        `yaml:"node_id"`
	Replicate  bool          `yaml:"replicate"`
	BatchSize  int           `yaml:"batch_size"`
	FlushEvery time.Duration `yaml:"flush_every"`
	Gzip       bool          `yaml:"gzip"`
}

// Default конфигурация без файла
func Default() *Config {
	return &Config{
		Server:    ServerConfig{MetricsEnabled: true},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{ServiceName: "mca-tools"},
		Events: EventsConfig{
			Retention:  24 * time.Hour,
			BufferSize: 1024,
			BatchSize:  256,
			FlushEvery: time.Second,
		},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "MCA_REST_PORT", 8088)
}

// GetDir возвращает каталог мира: config -> MCA_WORLD_DIR -> "."
func (w *WorldConfig) GetDir() string {
	return getStringWithEnvFallback(w.Dir, "MCA_WORLD_DIR", ".")
}

// GetSnapshotDir возвращает каталог снимков: config -> MCA_SNAPSHOT_DIR -> "data"
func (s *StorageConfig) GetSnapshotDir() string {
	return getStringWithEnvFallback(s.SnapshotDir, "MCA_SNAPSHOT_DIR", "data")
}

// GetNATSURL адрес NATS с fallback на MCA_NATS_URL
func (e *EventsConfig) GetNATSURL() string {
	return getStringWithEnvFallback(e.NATSURL, "MCA_NATS_URL", "")
}

// GetNodeID идентификатор узла: config -> MCA_NODE_ID -> имя хоста
func (e *EventsConfig) GetNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "mca-tools"
	}
	return getStringWithEnvFallback(e.NodeID, "MCA_NODE_ID", host)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

func getStringWithEnvFallback(configVal, envVar, defaultVal string) string {
	if configVal != "" {
		return configVal
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultVal
}

// Load читает YAML файл конфигурации поверх Default.
// Если path == "", пытается прочитать из ENV MCA_CONFIG или возвращает Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("MCA_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан, используем дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
