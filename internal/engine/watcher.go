// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/skflow/skflow/internal/util"
)

const configDebounce = 500 * time.Millisecond

// ApplyConfig takes the session selections and rpc_url from cfg. Connection
// settings (api_url, ssh, identity) only take effect on restart; it reports
// whether any of those differ.
func (e *Engine) ApplyConfig(cfg util.Config) (restartNeeded bool, err error) {
	if e.Flow.IsRunning() {
		return false, ErrBusy
	}
	if err := e.Flow.SetPermissionType(cfg.PermissionType); err != nil {
		return false, err
	}
	if err := e.Flow.SetSessionTime(cfg.SessionTime); err != nil {
		return false, err
	}
	settings := e.Flow.Settings()
	settings.Call.To, settings.Call.Value, settings.Call.Data = cfg.Call.To, cfg.Call.Value, cfg.Call.Data
	e.Flow.SetCall(settings.Call)

	e.mu.Lock()
	old := e.config
	var stale interface{ Close() }
	if cfg.RPCURL != old.RPCURL && e.balance != nil {
		stale = e.balance
		e.balance = nil
	}
	e.config = cfg
	e.mu.Unlock()
	if stale != nil {
		stale.Close()
	}

	restartNeeded = cfg.APIURL != old.APIURL ||
		cfg.ChainID != old.ChainID ||
		(cfg.SSH == nil) != (old.SSH == nil) ||
		(cfg.SSH != nil && *cfg.SSH != *old.SSH) ||
		(cfg.Identity == nil) != (old.Identity == nil) ||
		(cfg.Identity != nil && *cfg.Identity != *old.Identity)
	return restartNeeded, nil
}

// WatchConfig reloads config.yaml whenever it changes until ctx is done.
// onReload is called after each reload attempt with the outcome.
func (e *Engine) WatchConfig(ctx context.Context, onReload func(restartNeeded bool, err error)) error {
	path := util.GetConfigPath(e.DataDir)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: editors replace the file rather than write it.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()

		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(configDebounce, func() {
					restart, err := e.reloadConfig()
					if onReload != nil {
						onReload(restart, err)
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				util.Logger.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}

func (e *Engine) reloadConfig() (bool, error) {
	cfg, err := util.LoadConfig(e.DataDir)
	if err != nil {
		return false, err
	}
	restart, err := e.ApplyConfig(cfg)
	if err != nil {
		return false, err
	}
	util.Debug("config reloaded", "restart_needed", restart)
	return restart, nil
}
