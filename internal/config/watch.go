package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	logs "github.com/danmuck/blocksdk/internal/logging"
)

// WatchEditorConfig calls onChange with each successfully reloaded config until ctx ends.
// The directory is watched so that editors which replace the file on save still trigger a
// reload. Files that fail to load are logged and skipped.
func WatchEditorConfig(ctx context.Context, path string, onChange func(EditorConfig)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch editor config: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch editor config: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch editor config: %w", err)
	}
	logs.Infof("config.WatchEditorConfig watching path=%q", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadEditorConfig(abs)
			if err != nil {
				logs.Warnf("config.WatchEditorConfig reload skipped path=%q err=%v", abs, err)
				continue
			}
			logs.Infof("config.WatchEditorConfig reloaded path=%q op=%s", abs, ev.Op)
			onChange(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logs.Warnf("config.WatchEditorConfig watcher error=%v", err)
		}
	}
}
