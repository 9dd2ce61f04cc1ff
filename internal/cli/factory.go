// Package cli assembles a pipeline from deployment configuration. It is the glue
// between the environment of a stage process and the baton library.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/baton"
	"github.com/aretw0/baton/internal/logging"
	"github.com/aretw0/baton/pkg/adapters/faas"
	"github.com/aretw0/baton/pkg/adapters/file"
	"github.com/aretw0/baton/pkg/adapters/gateway"
	"github.com/aretw0/baton/pkg/adapters/memory"
	"github.com/aretw0/baton/pkg/adapters/minio"
	"github.com/aretw0/baton/pkg/adapters/redis"
	"github.com/aretw0/baton/pkg/config"
	"github.com/aretw0/baton/pkg/dispatch"
	"github.com/aretw0/baton/pkg/domain"
	"github.com/aretw0/baton/pkg/persistence/middleware"
	"github.com/aretw0/baton/pkg/ports"
	"github.com/aretw0/baton/pkg/registry"
	"github.com/aretw0/baton/pkg/works"
	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
)

// Env is what every command starts from.
type Env struct {
	Config   config.Config
	Graph    *domain.StageGraph
	Logger   *slog.Logger
	Registry *prometheus.Registry
	// Works holds the work functions stages can run. Defaults to the built-in works.
	Works *registry.Registry
	Debug bool
}

// Load validates cfg, reads the stage graph and applies the deployment overrides.
func Load(cfg config.Config) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	g, err := LoadGraph(cfg)
	if err != nil {
		return nil, err
	}
	reg := registry.NewRegistry()
	works.Register(reg)

	return &Env{
		Config:   cfg,
		Graph:    g,
		Logger:   logging.New(level),
		Registry: prometheus.NewRegistry(),
		Works:    reg,
		Debug:    level <= slog.LevelDebug,
	}, nil
}

// LoadGraph reads the stage graph named by cfg and applies the deployment
// overrides. Backend settings are not checked.
func LoadGraph(cfg config.Config) (*domain.StageGraph, error) {
	g, err := config.LoadGraph(cfg.Graph)
	if err != nil {
		return nil, err
	}
	if err := config.Apply(g, cfg); err != nil {
		return nil, err
	}
	return g, nil
}

// Pipeline builds the pipeline described by the environment.
func (e *Env) Pipeline(ctx context.Context, hooks ...domain.LifecycleHooks) (*baton.Pipeline, error) {
	cfg := e.Config
	store, locker, err := createStore(cfg)
	if err != nil {
		return nil, err
	}
	stageInv, triggerInv, err := createInvokers(cfg, e.Graph, e.Logger)
	if err != nil {
		return nil, err
	}

	opts := []baton.Option{
		baton.WithStore(store),
		baton.WithRegistry(e.Works),
		baton.WithLogger(e.Logger),
		baton.WithRunScoped(cfg.RunScoped),
		baton.WithMetrics(dispatch.NewMetrics(e.Registry)),
		baton.WithDispatchConfig(dispatch.Config{
			Workers:        cfg.DispatchWorkers,
			QueueSize:      cfg.DispatchQueue,
			EnqueueTimeout: cfg.EnqueueTimeout,
			Timeout:        cfg.DispatchTimeout,
			Requeue:        cfg.Requeue,
		}),
	}
	if stageInv != nil {
		opts = append(opts, baton.WithInvoker(stageInv))
	}
	if triggerInv != nil {
		opts = append(opts, baton.WithTriggerInvoker(triggerInv))
	}
	if locker != nil {
		opts = append(opts, baton.WithLocker(locker, cfg.LockTTL))
	}
	if e.Debug {
		hooks = append([]domain.LifecycleHooks{createDebugHooks(e.Logger)}, hooks...)
	}
	if len(hooks) > 0 {
		opts = append(opts, baton.WithLifecycleHooks(combineHooks(hooks...)))
	}

	p, err := baton.New(e.Graph, opts...)
	if err != nil {
		return nil, err
	}
	e.Logger.Debug("pipeline ready", "store", cfg.Store, "stages", len(e.Graph.Stages), "gateway", cfg.GatewayEndpoint)
	return p, nil
}

// createStore opens the configured blob store, sealed with the encryption
// middleware when a key is set. The locker is only set when invocation locking
// is enabled.
func createStore(cfg config.Config) (ports.BlobStore, ports.Locker, error) {
	store, locker, err := openStore(cfg)
	if err != nil || cfg.EncryptionKey == "" {
		return store, locker, err
	}
	enc, err := encryptionConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return middleware.Chain(store, middleware.NewEncryptionMiddleware(enc)), locker, nil
}

func encryptionConfig(cfg config.Config) (middleware.EncryptionConfig, error) {
	active, err := middleware.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return middleware.EncryptionConfig{}, err
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for _, s := range cfg.EncryptionFallbackKeys {
		key, err := middleware.ParseKey(s)
		if err != nil {
			return middleware.EncryptionConfig{}, fmt.Errorf("fallback %w", err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	return enc, nil
}

func openStore(cfg config.Config) (ports.BlobStore, ports.Locker, error) {
	switch cfg.Store {
	case config.StoreMinio:
		s, err := minio.New(minio.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Secure:    cfg.MinioSecure,
			Region:    cfg.MinioRegion,
		})
		return s, nil, err
	case config.StoreFile:
		return file.New(cfg.FileRoot), nil, nil
	case config.StoreRedis:
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		var locker ports.Locker
		if cfg.Lock {
			locker = redis.NewLocker(client, "baton:")
		}
		return redis.NewFromClient(client, redis.WithTTL(cfg.RedisTTL)), locker, nil
	case config.StoreMemory:
		return memory.NewStore(), nil, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown store %q", domain.ErrConfiguration, cfg.Store)
}

// createInvokers returns the stage and trigger invokers. Both are nil without a
// gateway, which keeps the whole chain in this process.
func createInvokers(cfg config.Config, g *domain.StageGraph, logger *slog.Logger) (ports.Invoker, ports.Invoker, error) {
	if cfg.GatewayEndpoint == "" {
		return nil, nil, nil
	}
	mode, err := gateway.ParseMode(cfg.TriggerMode)
	if err != nil {
		return nil, nil, err
	}
	auth := gateway.WithBasicAuth(cfg.GatewayUser, cfg.GatewayPassword)

	stageInv, err := gateway.New(cfg.GatewayEndpoint, gateway.WithMode(mode), gateway.WithTriggerStage(g.TriggerStage()), auth)
	if err != nil {
		return nil, nil, err
	}
	// The trigger function always calls stages directly, or it would relay to itself.
	direct, err := gateway.New(cfg.GatewayEndpoint, gateway.WithMode(gateway.ModeDirect), auth)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Provision {
		return stageInv, direct, nil
	}

	functions := faas.FromGraph(g)
	baseDir := filepath.Dir(cfg.Graph)
	if cfg.Functions != "" {
		functions, err = faas.LoadFunctions(cfg.Functions)
		if err != nil {
			return nil, nil, err
		}
		baseDir = ""
	}
	prov := faas.NewProvisioner(functions,
		faas.WithCLI(cfg.FaasCLI),
		faas.WithTimeout(cfg.ProvisionTimeout),
		faas.WithBaseDir(baseDir),
		faas.WithLogger(logger.With("component", "faas")),
	)
	return stageInv, faas.NewProvisioningInvoker(prov, direct, logger), nil
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPhase: func(ctx context.Context, e *domain.PhaseEvent) {
			if e.Err != nil {
				logger.Debug("Phase", "stage", e.Stage, "run_id", e.RunID, "phase", e.Phase, "err", e.Err)
				return
			}
			logger.Debug("Phase", "stage", e.Stage, "run_id", e.RunID, "phase", e.Phase)
		},
		OnDispatch: func(ctx context.Context, e *domain.DispatchEvent) {
			logger.Debug("Dispatch",
				"current_stage", e.Request.CurrentStage,
				"next_stage", e.Request.NextStage,
				"attempt", e.Attempt,
				"duration", e.Duration,
				"ok", e.Err == nil,
			)
		},
	}
}

// combineHooks fans every event out to each set of hooks in order.
func combineHooks(all ...domain.LifecycleHooks) domain.LifecycleHooks {
	if len(all) == 1 {
		return all[0]
	}
	return domain.LifecycleHooks{
		OnPhase: func(ctx context.Context, e *domain.PhaseEvent) {
			for _, h := range all {
				if h.OnPhase != nil {
					h.OnPhase(ctx, e)
				}
			}
		},
		OnDispatch: func(ctx context.Context, e *domain.DispatchEvent) {
			for _, h := range all {
				if h.OnDispatch != nil {
					h.OnDispatch(ctx, e)
				}
			}
		},
	}
}

func errUnknownStage(name string) error {
	return fmt.Errorf("%w: %s", domain.ErrStageNotFound, name)
}
