package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"Soundscape/logger"
)

// settleDelay is how long a file must stay quiet before it is reported.
const settleDelay = 100 * time.Millisecond

// Watcher reports sound files below a directory that were written, removed
// or renamed. Paths are passed to OnChange relative to the root, with
// forward slashes, the same form the engine uses as cache keys.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	OnChange func(path string)
}

// NewWatcher watches root and every directory below it.
func NewWatcher(root string, onChange func(path string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	w := &Watcher{root: root, watcher: fw, OnChange: onChange}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// Run delivers changes until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	pending := make(map[string]time.Time)
	checkTicker := time.NewTicker(50 * time.Millisecond)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						logger.Warn("Watch new directory failed", logger.Path(event.Name), logger.ErrorField(err))
					}
					continue
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if _, ok := contentTypes[strings.ToLower(filepath.Ext(event.Name))]; ok {
					pending[event.Name] = time.Now()
				}
			}

		case <-checkTicker.C:
			now := time.Now()
			for name, last := range pending {
				if now.Sub(last) < settleDelay {
					continue
				}
				delete(pending, name)
				rel, err := filepath.Rel(w.root, name)
				if err != nil {
					continue
				}
				rel = filepath.ToSlash(rel)
				logger.Debug("Sound file changed", logger.Path(rel))
				if w.OnChange != nil {
					w.OnChange(rel)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("File watcher error", logger.ErrorField(err))
		}
	}
}
