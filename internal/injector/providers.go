package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/worldsync/internal/config"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/schema/registry"
	"github.com/zeusync/worldsync/internal/core/storage"
	"github.com/zeusync/worldsync/internal/core/storage/sqlite"
	"github.com/zeusync/worldsync/internal/core/world"
	"github.com/zeusync/worldsync/internal/game/components"
)

var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideRegistry,
	ProvideWorldFactory,
	ProvideSnapshotStore,
	NewApp,
)

// WorldFactory builds an empty World configured for this process. opts are
// applied after the configured ones.
type WorldFactory func(opts ...world.Option) *world.World

// App bundles what the commands need.
type App struct {
	Config   *config.Config
	Log      log.Log
	Registry *registry.Registry
	Store    storage.SnapshotStore
	NewWorld WorldFactory
}

func NewApp(cfg *config.Config, logger log.Log, reg *registry.Registry, newWorld WorldFactory, store storage.SnapshotStore) *App {
	return &App{Config: cfg, Log: logger, Registry: reg, Store: store, NewWorld: newWorld}
}

func ProvideLogger(cfg *config.Config) (*log.Logger, func(), error) {
	logger, err := log.New(cfg.LogLevel())
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

func ProvideRegistry(cfg *config.Config) (*registry.Registry, error) {
	reg := registry.New()
	if err := components.Register(reg, cfg.Components.Dynamic...); err != nil {
		return nil, err
	}
	return reg, nil
}

func ProvideWorldFactory(cfg *config.Config) WorldFactory {
	return func(opts ...world.Option) *world.World {
		var ids world.IDAllocator = world.NewSequentialIDs(cfg.World.IDPrefix)
		if cfg.World.IDStrategy == config.IDStrategyUUID {
			ids = world.UUIDIDs{}
		}
		return world.New(append([]world.Option{world.WithIDAllocator(ids)}, opts...)...)
	}
}

func ProvideSnapshotStore(cfg *config.Config, logger log.Log) (storage.SnapshotStore, func(), error) {
	store, err := sqlite.Open(cfg.Store.Path, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("close snapshot store", log.Error(err))
		}
	}, nil
}
