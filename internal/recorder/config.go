// Package recorder runs the background service periodically storing meter
// readings in PostgreSQL, one worker per consumption unit.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultInterval is the polling interval used when the configuration does
// not set one. New readings appear at most once a day, polling faster than
// this only hammers the API.
const DefaultInterval = 6 * time.Hour

// Conf represents the configuration file structure.
type Conf struct {
	// Interval between polls as a Go duration string, e.g. "6h".
	Interval string `json:"interval"`
	// Units lists the consumption unit UUIDs to record. An empty list
	// records every unit of the account.
	Units []string `json:"units"`
}

// ConfigManager loads and watches the recorder configuration file.
type ConfigManager struct {
	config     Conf
	interval   time.Duration
	lock       sync.RWMutex
	configPath string

	log *slog.Logger
}

// NewConfigManager creates a configuration manager for the given path.
func NewConfigManager(path string, log *slog.Logger) *ConfigManager {
	return &ConfigManager{
		configPath: path,
		interval:   DefaultInterval,
		log:        log,
	}
}

// Load reads the configuration from the file and updates the internal state.
func (cm *ConfigManager) Load() error {
	file, err := os.Open(cm.configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer file.Close()

	var newConfig Conf
	if err := json.NewDecoder(file).Decode(&newConfig); err != nil {
		return fmt.Errorf("decoding config JSON: %w", err)
	}

	interval := DefaultInterval
	if newConfig.Interval != "" {
		interval, err = time.ParseDuration(newConfig.Interval)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %v", newConfig.Interval, err)
		}
		if interval < time.Minute {
			return fmt.Errorf("interval %q is below the one minute minimum", newConfig.Interval)
		}
	}

	cm.lock.Lock()
	cm.config = newConfig
	cm.interval = interval
	cm.lock.Unlock()

	cm.log.Info("Configuration loaded", "interval", interval, "units", len(newConfig.Units))
	return nil
}

// Watch starts watching the configuration file for changes.
//
// It returns two channels: one for configuration changes which result in a
// successful load and another for unrecoverable watcher errors.
func (cm *ConfigManager) Watch(ctx context.Context) (changes <-chan struct{}, errs <-chan error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	configDir, _ := filepath.Split(cm.configPath)
	if configDir == "" {
		configDir = "."
	}
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", configDir, err)
	}

	cm.log.Info("Watching configuration directory", "dir", configDir)
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				cm.log.Info("Configuration watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if event.Name != cm.configPath {
					continue
				}

				cm.log.Debug("Configuration file changed. Reloading...")
				if err := cm.Load(); err != nil {
					cm.log.Warn("Error reloading config", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				cm.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// Units returns the consumption unit allow list from the configuration.
func (cm *ConfigManager) Units() []string {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config.Units
}

// Interval returns the polling interval from the configuration.
func (cm *ConfigManager) Interval() time.Duration {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.interval
}
