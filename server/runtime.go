package server

import (
	"context"
	"fmt"

	"github.com/gopxl/beep/v2"

	"Soundscape/catalog"
	"Soundscape/config"
	"Soundscape/core/audio"
	"Soundscape/core/engine"
	"Soundscape/db"
	"Soundscape/logger"
	"Soundscape/repository"
	"Soundscape/storage"
)

// Runtime is the assembled mixer with its stores, shared by the server and
// the play command.
type Runtime struct {
	Bus    *audio.Bus
	Mixer  *engine.Mixer
	Mixes  *repository.MixRepository
	Sounds repository.SoundRepository

	driver  audio.Driver
	closers []func() error
}

// OpenMixStore returns the store selected by MIX_STORE.
func OpenMixStore(cfg *config.Config) (repository.KVStore, func() error, error) {
	switch cfg.MixStore {
	case "memory":
		logger.Warn("Mixes are kept in memory and lost on exit")
		return db.NewMemoryStore(), func() error { return nil }, nil
	case "", "redis":
		if err := db.ConnectRedis(cfg); err != nil {
			return nil, nil, err
		}
		return db.NewRedisStore(db.RedisClient, cfg.MixKeyPrefix), db.CloseRedis, nil
	default:
		return nil, nil, fmt.Errorf("unknown mix store %q", cfg.MixStore)
	}
}

// NewRuntime opens the sound source, the audio output and the stores. The
// audio driver runs until ctx is cancelled or Close is called.
func NewRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{}
	ready := false
	defer func() {
		if !ready {
			rt.Close()
		}
	}()

	fetcher, err := storage.NewFetcher(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sound source: %w", err)
	}

	rt.Bus = audio.NewBus(beep.SampleRate(cfg.SampleRate))
	rt.driver, err = audio.NewDriver(cfg.AudioDriver, rt.Bus)
	if err != nil {
		return nil, err
	}
	if err := rt.driver.Start(ctx); err != nil {
		return nil, fmt.Errorf("start audio output: %w", err)
	}
	rt.closers = append(rt.closers, rt.driver.Close)

	cache := engine.NewBufferCache(engine.SourceLoader(fetcher, rt.Bus.SampleRate()))
	rt.Mixer = engine.NewMixer(engine.NewEngine(rt.Bus, cache))

	if cfg.WatchSounds && (cfg.SoundSource == "" || cfg.SoundSource == "file") {
		w, err := storage.NewWatcher(cfg.SoundDir, cache.Invalidate)
		if err != nil {
			return nil, err
		}
		go w.Run(ctx)
		logger.Info("Watching sound directory", logger.Path(cfg.SoundDir))
	}

	store, closeStore, err := OpenMixStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("mix store: %w", err)
	}
	rt.closers = append(rt.closers, closeStore)
	rt.Mixes = repository.NewMixRepository(store)

	rt.Sounds, err = catalog.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("sound catalog: %w", err)
	}
	if cfg.CatalogSource == "db" {
		rt.closers = append(rt.closers, db.CloseGormDB)
	}

	logger.Info("Mixer ready",
		logger.Int("sampleRate", cfg.SampleRate),
		logger.String("driver", cfg.AudioDriver),
		logger.String("source", cfg.SoundSource))
	ready = true
	return rt, nil
}

// Close stops every track and releases the output and stores.
func (rt *Runtime) Close() {
	if rt.Mixer != nil {
		rt.Mixer.ClearTracks()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			logger.Warn("Close failed", logger.ErrorField(err))
		}
	}
	rt.closers = nil
}
