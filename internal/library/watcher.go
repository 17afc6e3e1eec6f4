package library

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"podfeed/internal/metadata"
)

// Watcher monitors an audio directory and invokes a callback once changes
// have settled for the debounce interval.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	logger   *log.Logger
	onChange func()

	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	refreshDelay time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewWatcher starts watching root and every directory below it.
func NewWatcher(root string, debounce time.Duration, onChange func(), logger *log.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.Default()
	}

	w := &Watcher{
		root:         root,
		watcher:      watcher,
		logger:       logger,
		onChange:     onChange,
		refreshDelay: debounce,
		done:         make(chan struct{}),
	}

	w.addWatchRecursive(root)

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Close stops the watcher and waits for a pending callback to be dropped.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)

		w.refreshMu.Lock()
		if w.refreshTimer != nil {
			w.refreshTimer.Stop()
			w.refreshTimer = nil
		}
		w.refreshMu.Unlock()

		w.closeErr = w.watcher.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addWatchRecursive(event.Name)
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		if metadata.IsAudio(event.Name) || event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			w.scheduleRefresh()
		}
	}
}

func (w *Watcher) scheduleRefresh() {
	select {
	case <-w.done:
		return
	default:
	}

	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	if w.refreshTimer != nil {
		w.refreshTimer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(w.refreshDelay, func() {
		select {
		case <-w.done:
			return
		default:
		}

		w.onChange()

		w.refreshMu.Lock()
		if w.refreshTimer == timer {
			w.refreshTimer = nil
		}
		w.refreshMu.Unlock()
	})

	w.refreshTimer = timer
}

func (w *Watcher) addWatchRecursive(path string) {
	filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Printf("walk error for %s: %v", p, err)
			return nil
		}

		if d.IsDir() {
			if err := w.watcher.Add(p); err != nil {
				w.logger.Printf("watcher add failure for %s: %v", p, err)
			}
		}
		return nil
	})
}
