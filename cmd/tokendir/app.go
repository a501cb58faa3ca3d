package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/0xsequence/token-directory/internal/chains"
	"github.com/0xsequence/token-directory/internal/config"
	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/httpx"
	"github.com/0xsequence/token-directory/internal/logging"
	"github.com/0xsequence/token-directory/internal/normalize"
	"github.com/0xsequence/token-directory/internal/observability"
	"github.com/0xsequence/token-directory/internal/sources/coingecko"
	"github.com/0xsequence/token-directory/internal/sources/evm"
	"github.com/0xsequence/token-directory/internal/storage"
	chstore "github.com/0xsequence/token-directory/internal/storage/clickhouse"
	"github.com/0xsequence/token-directory/internal/storage/fsstore"
	"github.com/0xsequence/token-directory/internal/storage/memory"
	pgstore "github.com/0xsequence/token-directory/internal/storage/postgres"
	"github.com/0xsequence/token-directory/internal/storage/rediscache"
)

type appOptions struct {
	Root       string
	ConfigFile string
	EnvFile    string
	LogLevel   string
	LogFormat  string
}

// app holds everything a command needs. Stores are opened lazily.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	registry *chains.Registry
	files    *fsstore.Store

	runs      storage.RunStore
	snapshots storage.SnapshotStore
	volumes   storage.VolumeStore
	cache     storage.PlatformCache

	norm       *normalize.Normalizer
	storesOpen bool
	closers    []func()
}

func newApp(_ context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(config.Options{EnvFile: opts.EnvFile, ConfigFile: opts.ConfigFile})
	if err != nil {
		return nil, fail(err)
	}
	if opts.Root != "" {
		cfg.Root = opts.Root
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.LogFormat = opts.LogFormat
	}

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return nil, fail(err)
	}
	registry, err := cfg.Chains()
	if err != nil {
		return nil, fail(err)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		files:    fsstore.NewOS(cfg.Root),
	}, nil
}

// openStores connects the configured databases, falling back to memory
// for anything not configured.
func (a *app) openStores(ctx context.Context) error {
	if a.storesOpen {
		return nil
	}
	a.storesOpen = true

	if a.cfg.PostgresDSN != "" {
		pool, err := pgstore.Open(ctx, a.cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.runs = pgstore.NewRunStore(pool)
		a.snapshots = pgstore.NewSnapshotStore(pool)
		a.log.Debug("run history in postgres")
	} else {
		a.runs = memory.NewRunStore()
		a.snapshots = memory.NewSnapshotStore()
	}

	if a.cfg.ClickhouseDSN != "" {
		conn, err := chstore.Open(ctx, a.cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.volumes = chstore.NewVolumeStore(conn)
		a.log.Debug("volume observations in clickhouse")
	} else {
		a.volumes = memory.NewVolumeStore()
	}

	if a.cfg.RedisURL != "" {
		cache, err := rediscache.Open(ctx, a.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = cache.Close() })
		a.cache = cache
		a.log.Debug("platform cache in redis")
	} else {
		a.cache = memory.NewPlatformCache()
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) pushMetrics(ctx context.Context, job string) error {
	if a.cfg.PushgatewayURL == "" {
		return nil
	}
	if err := observability.DefaultMetrics.Push(ctx, a.cfg.PushgatewayURL, job); err != nil {
		a.log.WithError(err).Warn("metrics push failed")
	}
	return nil
}

func (a *app) httpClient(opts ...httpx.ClientOption) *httpx.Client {
	base := []httpx.ClientOption{httpx.WithTimeout(a.cfg.HTTPTimeout), httpx.WithLogger(a.log)}
	return httpx.NewClient(append(base, opts...)...)
}

// coingecko returns the price API client. The key is required.
func (a *app) coingecko(ctx context.Context) (*coingecko.Client, error) {
	if err := a.cfg.RequireCoingecko(); err != nil {
		return nil, fail(err)
	}
	if err := a.openStores(ctx); err != nil {
		return nil, err
	}
	return coingecko.New(a.cfg.CoingeckoAPIKey,
		coingecko.WithBaseURL(a.cfg.CoingeckoBaseURL),
		coingecko.WithHTTP(a.httpClient(httpx.WithHeader(coingecko.APIKeyHeader, a.cfg.CoingeckoAPIKey))),
		coingecko.WithCache(a.cache, a.cfg.CacheTTL),
		coingecko.WithLogger(a.log),
	), nil
}

// normalizer returns a Normalizer, with on-chain symbol lookup when an RPC
// endpoint is configured.
func (a *app) normalizer(ctx context.Context) *normalize.Normalizer {
	if a.norm != nil {
		return a.norm
	}
	n := normalize.New(a.log)
	a.norm = n
	if a.cfg.EthRPCURL == "" {
		return n
	}
	resolver, client, err := evm.Dial(ctx, a.cfg.EthRPCURL)
	if err != nil {
		a.log.WithError(err).Warn("symbol fallback disabled")
		return n
	}
	a.closers = append(a.closers, client.Close)
	n.Resolver = resolver
	return n
}

// selectChains returns [name] when set, otherwise all. Unknown names fail.
func (a *app) selectChains(name string, all []string) ([]string, error) {
	if name == "" {
		return all, nil
	}
	if _, ok := a.registry.Get(name); !ok {
		return nil, failf("unknown chain %q", name)
	}
	return []string{name}, nil
}

// recordRun stores a run record for commands that do not go through a runner.
func (a *app) recordRun(ctx context.Context, rec *domain.RunRecord) {
	if rec.RunID == "" {
		rec.RunID = uuid.NewString()
	}
	if rec.FinishedAt == 0 {
		rec.FinishedAt = time.Now().UnixMilli()
	}
	observability.RecordRun(string(rec.Kind), rec.Status, float64(rec.FinishedAt-rec.StartedAt)/1000)
	if err := a.openStores(ctx); err != nil {
		a.log.WithError(err).Warn("run not recorded")
		return
	}
	if err := a.runs.Insert(ctx, rec); err != nil {
		a.log.WithError(err).Warn("run not recorded")
	}
}

func validCount(n int) error {
	if n <= 0 || n > coingecko.MaxPerPage {
		return failf("--count must be between 1 and %d, got %d", coingecko.MaxPerPage, n)
	}
	return nil
}
