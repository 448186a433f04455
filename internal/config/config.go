package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	World     WorldConfig     `yaml:"world"`
	Terrain   TerrainConfig   `yaml:"terrain"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Wizards   WizardsConfig   `yaml:"wizards"`
	Blocks    BlocksConfig    `yaml:"blocks"`
	Mappings  MappingsConfig  `yaml:"mappings"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	RESTPort int `yaml:"rest_port"`
}

type WorldConfig struct {
	Name         string `yaml:"name"`
	DataDir      string `yaml:"data_dir"` // пусто - чанки не сохраняются
	MinSection   int    `yaml:"min_section"`
	MaxSection   int    `yaml:"max_section"`
	TickRate     int    `yaml:"tick_rate"`
	ViewDistance int    `yaml:"view_distance"`
}

type TerrainConfig struct {
	Seed          int64   `yaml:"seed"`
	NoiseScale    float64 `yaml:"noise_scale"`
	BaseHeight    int     `yaml:"base_height"`
	Amplitude     int     `yaml:"amplitude"`
	SeaLevel      int     `yaml:"sea_level"`
	OreChance     float64 `yaml:"ore_chance"`
	CrystalChance float64 `yaml:"crystal_chance"`
	LanternChance float64 `yaml:"lantern_chance"`
}

type ScannerConfig struct {
	// Палитры не меньше порога сканируются напрямую, без предрасчёта слотов
	DirectThreshold int `yaml:"direct_threshold"`
}

type WizardsConfig struct {
	SignalOnMove bool `yaml:"signal_on_move"`
	UpdateQueue  int  `yaml:"update_queue"` // размер очереди обновлений на игрока
}

type BlocksConfig struct {
	Definitions string `yaml:"definitions"` // YAML с дополнительными блоками
}

type MappingsConfig struct {
	Path string `yaml:"path"` // пусто - встроенные маппинги
}

type EventBusConfig struct {
	Backend   string `yaml:"backend"` // memory | jetstream
	Capacity  int    `yaml:"capacity"`
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	LogEvents bool   `yaml:"log_events"`
}

type SessionsConfig struct {
	Store           string        `yaml:"store"` // memory | redis | mysql | mongo | sqlite
	RedisAddr       string        `yaml:"redis_addr"`
	RedisDB         int           `yaml:"redis_db"`
	MySQLDSN        string        `yaml:"mysql_dsn"`
	MongoURI        string        `yaml:"mongo_uri"`
	SQLitePath      string        `yaml:"sqlite_path"`
	Cache           string        `yaml:"cache"` // none | memory | redis
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	InvalidationURL string        `yaml:"invalidation_url"` // NATS; пусто - без рассылки инвалидаций
}

type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
	Admin        bool   `yaml:"admin"`
}

type AuthConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Secret    string           `yaml:"secret"` // base64, >= 32 байт
	TokenTTL  time.Duration    `yaml:"token_ttl"`
	Operators []OperatorConfig `yaml:"operators"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`     // host:port коллектора; пусто - OTEL_EXPORTER_OTLP_ENDPOINT
	Insecure    bool    `yaml:"insecure"`     // http вместо https
	SampleRatio float64 `yaml:"sample_ratio"` // доля трасс, 0 - все
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Server: ServerConfig{RESTPort: 8088},
		World: WorldConfig{
			Name:         "overworld",
			MinSection:   0,
			MaxSection:   15,
			TickRate:     20,
			ViewDistance: 2,
		},
		Terrain: TerrainConfig{
			Seed:          42,
			NoiseScale:    0.05,
			BaseHeight:    48,
			Amplitude:     24,
			SeaLevel:      56,
			OreChance:     0.01,
			CrystalChance: 0.004,
			LanternChance: 0.02,
		},
		Scanner:   ScannerConfig{DirectThreshold: 64},
		Wizards:   WizardsConfig{UpdateQueue: 256},
		EventBus:  EventBusConfig{Backend: "memory", Capacity: 1024, Stream: "POLYVIEW", Retention: 24},
		Sessions:  SessionsConfig{Store: "memory", Cache: "none", CacheTTL: 10 * time.Minute},
		Auth:      AuthConfig{TokenTTL: 24 * time.Hour},
		Telemetry: TelemetryConfig{ServiceName: "polyview"},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "POLYVIEW_REST_PORT", 8088)
}

// getPortWithEnvFallback возвращает порт с приоритетом: env -> config -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	if configPort > 0 {
		return configPort
	}
	return defaultPort
}

// Load читает YAML файл поверх значений по умолчанию.
// Если path == "", берётся ENV POLYVIEW_CONFIG; без него возвращаются дефолты.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("POLYVIEW_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("конфигурация %s: %w", path, err)
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if c.World.MinSection > c.World.MaxSection {
		return fmt.Errorf("world.min_section %d больше max_section %d", c.World.MinSection, c.World.MaxSection)
	}
	if c.World.TickRate <= 0 {
		return fmt.Errorf("world.tick_rate должен быть > 0")
	}
	if c.World.ViewDistance < 0 {
		return fmt.Errorf("world.view_distance должен быть >= 0")
	}
	if c.Scanner.DirectThreshold < 1 {
		return fmt.Errorf("scanner.direct_threshold должен быть >= 1")
	}

	switch c.EventBus.Backend {
	case "memory":
	case "jetstream":
		if c.EventBus.URL == "" {
			return fmt.Errorf("eventbus.url обязателен для jetstream")
		}
	default:
		return fmt.Errorf("неизвестный eventbus.backend %q", c.EventBus.Backend)
	}

	switch c.Sessions.Store {
	case "memory":
	case "redis":
		if c.Sessions.RedisAddr == "" {
			return fmt.Errorf("sessions.redis_addr обязателен")
		}
	case "mysql":
		if c.Sessions.MySQLDSN == "" {
			return fmt.Errorf("sessions.mysql_dsn обязателен")
		}
	case "mongo":
		if c.Sessions.MongoURI == "" {
			return fmt.Errorf("sessions.mongo_uri обязателен")
		}
	case "sqlite":
		if c.Sessions.SQLitePath == "" {
			return fmt.Errorf("sessions.sqlite_path обязателен")
		}
	default:
		return fmt.Errorf("неизвестный sessions.store %q", c.Sessions.Store)
	}

	switch c.Sessions.Cache {
	case "", "none", "memory":
	case "redis":
		if c.Sessions.RedisAddr == "" {
			return fmt.Errorf("sessions.redis_addr обязателен для кеша redis")
		}
	default:
		return fmt.Errorf("неизвестный sessions.cache %q", c.Sessions.Cache)
	}

	if c.Auth.Enabled && len(c.Auth.Operators) == 0 {
		return fmt.Errorf("auth.enabled без операторов")
	}
	for i, op := range c.Auth.Operators {
		if op.Username == "" || op.PasswordHash == "" {
			return fmt.Errorf("auth.operators[%d]: нужны username и password_hash", i)
		}
	}

	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_ratio вне [0,1]: %v", r)
	}
	return nil
}
