package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/skylift/skylift/pkg/telemetry"
)

// Loader loads and validates the YAML configuration file, and can watch it
// for changes.
type Loader struct {
	logger   *telemetry.Logger
	validate *validator.Validate

	mu      sync.RWMutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a configuration loader.
func NewLoader(logger *telemetry.Logger) *Loader {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Loader{
		logger:   logger.NewComponentLogger("config"),
		validate: validator.New(),
	}
}

// Load reads, merges with defaults, and validates the config file at path.
// A missing file is not an error: the defaults are returned, so the client
// works out of the box against a base URL given on the command line.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}

	l.logger.WithField("path", path).Debug("Loaded configuration")
	return cfg, nil
}

// Validate checks a configuration against its struct tags.
func (l *Loader) Validate(cfg *Config) error {
	if err := l.validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Server.Token != "" && cfg.Server.TokenFile != "" {
		l.logger.Warn("Both token and token_file set; token_file wins")
	}
	return nil
}

// Watch watches the config file and invokes reloadFn with each successfully
// reloaded configuration. Invalid intermediate states are logged and
// skipped, so a half-saved file never replaces a working config.
func (l *Loader) Watch(ctx context.Context, path string, reloadFn func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	go l.processEvents(ctx, path, reloadFn)

	l.logger.WithField("path", path).Info("Started watching config file")
	return nil
}

// processEvents processes file system events and triggers reloads.
func (l *Loader) processEvents(ctx context.Context, path string, reloadFn func(*Config)) {
	// Debounce reload events
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			if l.watcher != nil {
				_ = l.watcher.Close()
				l.watcher = nil
			}
			l.mu.Unlock()
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if !strings.HasSuffix(event.Name, ".yaml") && !strings.HasSuffix(event.Name, ".yml") {
					continue
				}
				l.logger.WithFields(map[string]interface{}{
					"file": event.Name,
					"op":   event.Op.String(),
				}).Debug("Config file changed")

				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(reloadDelay, func() {
					cfg, err := l.Load(path)
					if err != nil {
						l.logger.WithError(err).Error("Failed to reload config")
						return
					}
					reloadFn(cfg)
				})
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.WithError(err).Error("Watcher error")
		}
	}
}
