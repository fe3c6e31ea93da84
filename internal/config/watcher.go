package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/loomery/loom/pkg/models"
)

// RosterWatcher reloads the agents roster when its file changes on disk.
// The parent directory is watched rather than the file itself, so editors
// that replace the file atomically still trigger a reload.
type RosterWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func([]*models.AgentProfile)
	onError  func(error)
	done     chan struct{}
}

// WatchRoster starts watching the roster file at path. onChange receives
// the freshly parsed profiles after every successful reload; parse errors
// go to onError and leave the previous roster in effect.
func WatchRoster(path string, onChange func([]*models.AgentProfile), onError func(error)) (*RosterWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve roster path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create roster watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch roster directory: %w", err)
	}

	rw := &RosterWatcher{
		watcher:  w,
		path:     abs,
		onChange: onChange,
		onError:  onError,
		done:     make(chan struct{}),
	}
	go rw.loop()
	return rw, nil
}

func (rw *RosterWatcher) loop() {
	defer close(rw.done)
	for {
		select {
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != rw.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			profiles, err := LoadRoster(rw.path)
			if err != nil {
				if rw.onError != nil {
					rw.onError(err)
				}
				continue
			}
			rw.onChange(profiles)
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			if rw.onError != nil {
				rw.onError(err)
			}
		}
	}
}

// Close stops watching and waits for the watch loop to exit.
func (rw *RosterWatcher) Close() error {
	err := rw.watcher.Close()
	<-rw.done
	return err
}
