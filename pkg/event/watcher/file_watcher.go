// Package watcher publishes config.changed events when entity
// definition files change, so registries reload without a restart.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/entable/entable/pkg/entity"
	"github.com/entable/entable/pkg/event"
)

// TopicConfig is the topic config.changed events are published on.
const TopicConfig = "entable.config"

// ConfigWatcher monitors entity definition files and publishes a
// config.changed event for every relevant write.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	bus     event.Publisher
	log     *zap.Logger
	once    sync.Once
}

// New builds a watcher publishing to bus.
func New(bus event.Publisher, logger *zap.Logger) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigWatcher{watcher: w, bus: bus, log: logger}, nil
}

// Watch adds a definition file or directory. The event loop starts
// with the first watch.
func (w *ConfigWatcher) Watch(path string) error {
	if err := w.watcher.Add(path); err != nil {
		return err
	}
	w.once.Do(func() { go w.handleEvents() })
	return nil
}

// Close stops watching.
func (w *ConfigWatcher) Close() error {
	return w.watcher.Close()
}

// handleEvents turns definition-file writes into config.changed
// events. Only .json files count; editors and tooling touch other
// files in config directories.
func (w *ConfigWatcher) handleEvents() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			evt := event.New(event.TypeConfigChanged, "", nil, map[string]any{
				"path": ev.Name,
				"dir":  filepath.Dir(ev.Name),
			})
			if err := w.bus.Publish(context.Background(), TopicConfig, evt); err != nil {
				w.log.Warn("publishing config change failed",
					zap.String("path", ev.Name), zap.Error(err))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

// ReloadOnChange subscribes to config.changed events and reloads dir
// into the registry. Pair it with Watch(dir). A broken definition
// leaves the registry unchanged and does not poison the subscription.
func ReloadOnChange(ctx context.Context, bus event.Subscriber, reg *entity.Registry, dir string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return bus.Subscribe(ctx, TopicConfig, func(e *event.Event) error {
		if e.Type != event.TypeConfigChanged {
			return nil
		}
		if err := entity.LoadDirInto(reg, dir); err != nil {
			logger.Warn("entity registry reload failed", zap.String("dir", dir), zap.Error(err))
			return nil
		}
		logger.Info("entity registry reloaded",
			zap.String("dir", dir), zap.Int("entities", reg.Len()))
		return nil
	})
}
