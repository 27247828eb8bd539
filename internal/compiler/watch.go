package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/leapmetrics/internal/loader"
)

// WatchDebounce is how long Watch waits after the last change before
// recompiling.
var WatchDebounce = 200 * time.Millisecond

// Watch compiles once, then recompiles whenever a YAML document under the
// input directories changes. onRun receives the result of every run. Watch
// blocks until ctx is cancelled.
func (c *Compiler) Watch(ctx context.Context, onRun func(*Report, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	watched := 0
	for _, dir := range c.cfg.InputDirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		if err := watchDir(watcher, dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("no input directory to watch in %v", c.cfg.InputDirs)
	}

	onRun(c.Run(ctx))
	c.logger.Info("watching for changes", "inputs", c.cfg.InputDirs)

	output, _ := filepath.Abs(c.cfg.OutputPath)
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchDir(watcher, event.Name); err != nil {
						c.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
					}
					debounce = time.After(WatchDebounce)
					continue
				}
			}

			if !loader.IsYAML(event.Name) {
				continue
			}
			if abs, _ := filepath.Abs(event.Name); abs == output {
				continue
			}
			c.logger.Debug("change detected", "file", event.Name, "op", event.Op.String())
			debounce = time.After(WatchDebounce)

		case <-debounce:
			debounce = nil
			onRun(c.Run(ctx))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watcher error", "error", err)
		}
	}
}

// watchDir recursively adds a directory to the watcher, skipping hidden
// directories.
func watchDir(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && len(d.Name()) > 0 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
