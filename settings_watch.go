package svcrun

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"vawter.tech/stopper"
)

// WatchOption configures a settings file watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
	log      zerolog.Logger
}

// WithWatchDebounce sets the debounce interval between a file event and the
// reload it triggers.
func WithWatchDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithWatchLogger sets the logger for watch events and reload failures.
func WithWatchLogger(log zerolog.Logger) WatchOption {
	return func(c *watchConfig) {
		c.log = log
	}
}

// WatchSettingsFile watches a TOML file and publishes its decoded contents
// through the handle's settings cell whenever it changes. The file is
// decoded once immediately so the cell and the file agree from the start;
// afterwards every write to the file becomes an UpdateSettings on the
// handle. A file that fails to decode is logged and skipped, keeping the
// previous settings visible.
//
// The returned cleanup function stops the watcher and blocks until its
// goroutine has exited. It is idempotent.
func WatchSettingsFile[C, S, M any](h *Handle[C, S, M], path string, opts ...WatchOption) (func() error, error) {
	cfg := watchConfig{
		debounce: DefaultWatchDebounce,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.log.With().Str("service", h.ID()).Str("path", path).Logger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &OpError{Op: OpWatch, Service: h.ID(), Err: err}
	}
	// Watch the directory, not the file: editors and atomic writers replace
	// the file by rename, which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, &OpError{Op: OpWatch, Service: h.ID(), Err: err}
	}

	reload := func() {
		var settings C
		if _, err := toml.DecodeFile(path, &settings); err != nil {
			log.Warn().Err(err).Msg("settings file reload skipped")
			return
		}
		h.UpdateSettings(settings)
		log.Debug().Msg("settings reloaded from file")
	}

	// Initial load so the cell reflects the file before any event arrives.
	reload()

	sctx := stopper.WithContext(h.Scheduler().Context())
	sctx.Defer(func() {
		_ = watcher.Close()
	})

	var mu sync.Mutex
	var debouncer *time.Timer

	accepted := sctx.Go(func(sctx *stopper.Context) error {
		sctx.Defer(func() {
			mu.Lock()
			if debouncer != nil {
				debouncer.Stop()
			}
			mu.Unlock()
		})

		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(event.Name) != filepath.Base(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				mu.Lock()
				if debouncer != nil {
					debouncer.Stop()
				}
				debouncer = time.AfterFunc(cfg.debounce, func() {
					if !sctx.IsStopping() {
						reload()
					}
				})
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil && !sctx.IsStopping() {
					log.Warn().Err(err).Msg("settings watcher error")
				}
			}
		}
		return nil
	})
	if !accepted {
		// The handle's scheduler is already stopping; the watch goroutine
		// was never spawned.
		_ = watcher.Close()
		return nil, &OpError{Op: OpWatch, Service: h.ID(), Err: ErrSchedulerStopped}
	}

	cleanup := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}
	return cleanup, nil
}
