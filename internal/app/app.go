// Package app собирает сервер из конфигурации: реестр блоков, маппинги,
// шину событий, хранилища, мир, сессии и REST API.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/annel0/polyview/internal/api"
	"github.com/annel0/polyview/internal/auth"
	"github.com/annel0/polyview/internal/cache"
	"github.com/annel0/polyview/internal/config"
	"github.com/annel0/polyview/internal/eventbus"
	"github.com/annel0/polyview/internal/gen"
	"github.com/annel0/polyview/internal/logging"
	"github.com/annel0/polyview/internal/metrics"
	"github.com/annel0/polyview/internal/observability"
	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/session"
	"github.com/annel0/polyview/internal/storage"
	"github.com/annel0/polyview/internal/world"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// PrefStore - хранилище маппингов игроков, которое нужно закрыть при остановке
type PrefStore interface {
	session.PrefStore
	io.Closer
}

// App - собранный сервер
type App struct {
	cfg *config.Config

	Blocks   *block.Registry
	Mappings *polymap.Set
	Bus      eventbus.EventBus
	Prefs    PrefStore
	Chunks   *storage.WorldStorage // nil - чанки не сохраняются
	World    *world.World
	Sessions *session.Manager
	API      *api.RestServer

	webhooks      *api.WebhookForwarder
	unregisterBus func()
	eventLog      eventbus.Subscription
	telemetry     observability.Shutdown
}

// Options переопределяют внешние зависимости (для тестов)
type Options struct {
	// Registry - регистр метрик; nil - prometheus.DefaultRegisterer
	Registry *prometheus.Registry
	// APILogger - логгер запросов; nil - отдельный файл logs/api
	APILogger *logging.Logger
}

// New собирает сервер. При ошибке уже созданные ресурсы освобождаются.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{cfg: cfg}
	if err := a.build(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) (err error) {
	cfg := a.cfg

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	if opts.Registry != nil {
		registerer = opts.Registry
	}
	metrics.Register(registerer)

	if a.telemetry, err = observability.InitTelemetry(ctx, cfg.Telemetry); err != nil {
		return fmt.Errorf("телеметрия: %w", err)
	}

	if a.Blocks, err = buildBlocks(cfg.Blocks); err != nil {
		return err
	}
	if a.Mappings, err = buildMappings(cfg.Mappings, a.Blocks); err != nil {
		return err
	}
	logging.Info("🗺️ Маппинги: %v (по умолчанию %s)", a.Mappings.Names(), a.Mappings.Default().Name())

	if a.Bus, err = buildBus(cfg.EventBus); err != nil {
		return err
	}
	if cfg.EventBus.LogEvents {
		if a.eventLog, err = eventbus.StartLoggingListener(a.Bus); err != nil {
			return fmt.Errorf("логирование событий: %w", err)
		}
	}
	busMetrics := eventbus.NewCollector(a.Bus, cfg.EventBus.Backend)
	if err = registerer.Register(busMetrics); err != nil {
		return fmt.Errorf("метрики шины: %w", err)
	}
	a.unregisterBus = func() { registerer.Unregister(busMetrics) }

	if a.Prefs, err = buildPrefStore(ctx, cfg.Sessions); err != nil {
		return err
	}
	a.Sessions = session.NewManager(a.Mappings, a.Prefs, cfg.Wizards.UpdateQueue)

	terrain, err := gen.NewTerrain(terrainConfig(cfg.Terrain), a.Blocks)
	if err != nil {
		return err
	}
	worldOpts := world.Options{
		Name:            cfg.World.Name,
		Blocks:          a.Blocks,
		Maps:            world.MapResolverFunc(a.Sessions.MapOf),
		Generator:       observability.TracedGenerator{Next: terrain},
		Bus:             a.Bus,
		MinSection:      cfg.World.MinSection,
		MaxSection:      cfg.World.MaxSection,
		TickRate:        cfg.World.TickRate,
		DirectThreshold: cfg.Scanner.DirectThreshold,
		SignalOnMove:    cfg.Wizards.SignalOnMove,
	}
	if cfg.World.DataDir != "" {
		if a.Chunks, err = storage.NewWorldStorage(cfg.World.DataDir, cfg.World.Name); err != nil {
			return fmt.Errorf("хранилище чанков: %w", err)
		}
		worldOpts.Store = observability.TracedStore{Next: a.Chunks}
	}
	a.World = world.New(worldOpts)

	operators, issuer, err := buildAuth(cfg.Auth)
	if err != nil {
		return err
	}

	a.webhooks = api.NewWebhookForwarder(&http.Client{Timeout: 30 * time.Second}, time.Second)
	if err = a.webhooks.Start(ctx, a.Bus); err != nil {
		return err
	}

	apiLogger := opts.APILogger
	if apiLogger == nil {
		apiLogger = logging.GetAPILogger()
	}
	prefStats, _ := a.Prefs.(api.StatsReporter)
	a.API = api.NewRestServer(api.Config{
		Port:         fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		World:        a.World,
		Sessions:     a.Sessions,
		Mappings:     a.Mappings,
		Bus:          a.Bus,
		Operators:    operators,
		Issuer:       issuer,
		Webhooks:     a.webhooks,
		ViewDistance: cfg.World.ViewDistance,
		Registry:     opts.Registry,
		Logger:       apiLogger,
		PrefStats:    prefStats,
	})
	return nil
}

// Run запускает тики мира и REST API и блокируется до отмены ctx или ошибки
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.World.Run(ctx)
		return nil
	})
	g.Go(a.API.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.API.Stop(shutdownCtx)
	})

	logging.Info("✅ PolyView запущен: мир %s, REST API :%d", a.World.Name(), a.cfg.Server.GetRESTPort())
	return g.Wait()
}

// Close освобождает ресурсы в обратном порядке создания
func (a *App) Close() error {
	var errs []error
	if a.webhooks != nil {
		a.webhooks.Stop()
	}
	if a.World != nil {
		// мир сохраняет чанки, поэтому закрывается раньше хранилища
		errs = append(errs, a.World.Close())
	}
	if a.Chunks != nil {
		errs = append(errs, a.Chunks.Close())
	}
	if a.Prefs != nil {
		errs = append(errs, a.Prefs.Close())
	}
	if a.eventLog != nil {
		a.eventLog.Unsubscribe()
	}
	if a.unregisterBus != nil {
		a.unregisterBus()
	}
	if a.Bus != nil {
		errs = append(errs, a.Bus.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry(context.Background()))
	}
	return errors.Join(errs...)
}

func buildBlocks(cfg config.BlocksConfig) (*block.Registry, error) {
	if cfg.Definitions == "" {
		return block.Defaults(), nil
	}
	defs, err := block.LoadDefinitions(cfg.Definitions)
	if err != nil {
		return nil, err
	}
	b := block.NewDefaultBuilder()
	if err := b.RegisterAll(defs); err != nil {
		return nil, fmt.Errorf("блоки из %s: %w", cfg.Definitions, err)
	}
	reg := b.Build()
	logging.Info("🧱 Загружено %d дополнительных блоков из %s", len(defs), cfg.Definitions)
	return reg, nil
}

func buildMappings(cfg config.MappingsConfig, blocks *block.Registry) (*polymap.Set, error) {
	if cfg.Path == "" {
		return polymap.BuildSet(polymap.DefaultFile(), blocks, polymap.DefaultKinds())
	}
	return polymap.LoadMappings(cfg.Path, blocks, polymap.DefaultKinds())
}

func buildBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	switch cfg.Backend {
	case "", "memory":
		return eventbus.NewMemoryBus(cfg.Capacity), nil
	case "jetstream":
		bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("шина событий: %w", err)
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("неизвестная шина событий %q", cfg.Backend)
	}
}

func buildPrefStore(ctx context.Context, cfg config.SessionsConfig) (PrefStore, error) {
	var (
		store PrefStore
		err   error
	)
	switch cfg.Store {
	case "", "memory":
		return storage.NewMemoryPrefStore(), nil
	case "redis":
		rc := storage.DefaultRedisConfig()
		if cfg.RedisAddr != "" {
			rc.Addr = cfg.RedisAddr
		}
		rc.DB = cfg.RedisDB
		store, err = storage.NewRedisPrefStore(ctx, rc)
	case "mysql":
		store, err = storage.NewMariaPrefStore(ctx, cfg.MySQLDSN)
	case "mongo":
		store, err = storage.NewMongoPrefStore(ctx, storage.MongoConfig{URI: cfg.MongoURI})
	case "sqlite":
		store, err = storage.NewSQLitePrefStore(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("неизвестное хранилище сессий %q", cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("хранилище сессий %s: %w", cfg.Store, err)
	}
	logging.Info("💾 Маппинги игроков хранятся в %s", cfg.Store)
	return withPrefCache(ctx, cfg, store)
}

// withPrefCache ставит горячий кеш перед хранилищем маппингов
func withPrefCache(ctx context.Context, cfg config.SessionsConfig, store PrefStore) (PrefStore, error) {
	var (
		hot cache.Cache
		err error
	)
	switch cfg.Cache {
	case "", "none":
		return store, nil
	case "memory":
		hot, err = cache.NewMemoryCache(4 << 20)
	case "redis":
		hot, err = cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	default:
		err = fmt.Errorf("неизвестный кеш %q", cfg.Cache)
	}
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("кеш маппингов: %w", err)
	}

	var inv cache.Invalidator
	if cfg.InvalidationURL != "" {
		nodeID := uuid.NewString()
		if inv, err = cache.NewNATSInvalidator(cache.InvalidatorConfig{NATSURL: cfg.InvalidationURL}, nodeID); err != nil {
			hot.Close()
			store.Close()
			return nil, err
		}
	}

	cached, err := cache.NewPrefCache(store, hot, inv, cfg.CacheTTL)
	if err != nil {
		if inv != nil {
			inv.Close()
		}
		hot.Close()
		store.Close()
		return nil, err
	}
	logging.Info("💾 Кеш маппингов: %s (инвалидация через NATS: %v)", cfg.Cache, inv != nil)
	return cached, nil
}

// buildAuth создаёт операторов и выпускающего токены; при выключенной
// аутентификации выпускающий равен nil и API открыт.
func buildAuth(cfg config.AuthConfig) (*auth.OperatorRepository, *auth.Issuer, error) {
	operators := auth.NewOperatorRepository()
	if !cfg.Enabled {
		logging.Warn("⚠️ Аутентификация REST API выключена")
		return operators, nil, nil
	}

	for _, op := range cfg.Operators {
		if _, err := operators.Create(op.Username, op.PasswordHash, op.Admin); err != nil {
			return nil, nil, fmt.Errorf("оператор %s: %w", op.Username, err)
		}
	}

	if cfg.Secret == "" {
		logging.Warn("⚠️ JWT секрет не задан, токены не переживут перезапуск")
	}
	issuer, err := auth.NewIssuer(cfg.Secret, cfg.TokenTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("JWT: %w", err)
	}
	logging.Info("🔐 Аутентификация включена, операторов: %d", operators.Len())
	return operators, issuer, nil
}

func terrainConfig(c config.TerrainConfig) gen.Config {
	return gen.Config{
		Seed:          c.Seed,
		NoiseScale:    c.NoiseScale,
		BaseHeight:    c.BaseHeight,
		Amplitude:     c.Amplitude,
		SeaLevel:      c.SeaLevel,
		OreChance:     c.OreChance,
		CrystalChance: c.CrystalChance,
		LanternChance: c.LanternChance,
	}
}
