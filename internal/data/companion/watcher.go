// Package companion serves the avatar state file that is bundled into every snapshot, reloading it
// whenever the file changes on disk.
package companion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/fsnotify/fsnotify"
	"github.com/penwyp/go-fade-canvas/internal/util"
)

// DefaultState is served while no state file exists.
var DefaultState = []byte(`{"R":133,"G":239,"B":238,"eyes":5,"mouth":1,"isSpeaking":false}`)

var ErrNotObject = errors.New("companion state is not a JSON object")

// Watcher caches the state file. Reads copy under a short-held lock.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	log     util.LoggerInterface

	mu  sync.RWMutex
	raw []byte

	writeMu sync.Mutex // serializes Save and Merge
}

// NewWatcher loads path and starts watching its directory. Call Run to process change events.
func NewWatcher(path string) (*Watcher, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create companion directory %s: %w", dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory so atomic replacements of the file are seen.
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		path:    path,
		watcher: fsw,
		log:     util.Component("companion"),
		raw:     DefaultState,
	}
	if err := w.Reload(); err != nil {
		w.log.Warn("Using default companion state", util.F("path", path), util.Err(err))
	}
	return w, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

func decode(data []byte) (map[string]interface{}, error) {
	var obj map[string]interface{}
	if err := sonic.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if obj == nil {
		return nil, ErrNotObject
	}
	return obj, nil
}

// Reload rereads the file. A missing file restores the defaults; an unreadable or invalid file
// keeps the last good state and returns the error.
func (w *Watcher) Reload() error {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		w.set(DefaultState)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read companion state: %w", err)
	}
	if _, err := decode(data); err != nil {
		return err
	}
	w.set(data)
	return nil
}

func (w *Watcher) set(data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.raw = append([]byte(nil), data...)
}

// Snapshot returns a copy of the current state bytes.
func (w *Watcher) Snapshot() ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]byte(nil), w.raw...), nil
}

// State returns the current state decoded.
func (w *Watcher) State() map[string]interface{} {
	data, _ := w.Snapshot()
	obj, err := decode(data)
	if err != nil {
		obj, _ = decode(DefaultState)
	}
	return obj
}

// Save replaces the state file atomically and updates the cache.
func (w *Watcher) Save(state map[string]interface{}) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.save(state)
}

// Merge overlays patch on the current state and saves the result, returning it.
func (w *Watcher) Merge(patch map[string]interface{}) (map[string]interface{}, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	state := w.State()
	for k, v := range patch {
		state[k] = v
	}
	if err := w.save(state); err != nil {
		return nil, err
	}
	return state, nil
}

// save writes state. Caller holds writeMu.
func (w *Watcher) save(state map[string]interface{}) error {
	data, err := sonic.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode companion state: %w", err)
	}
	if err := util.WriteFileAtomic(w.path, data, 0644); err != nil {
		return err
	}
	w.set(data)
	return nil
}

// Run reloads the state on every change to the file until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := w.Reload(); err != nil {
				w.log.Warn("Companion state reload failed", util.F("op", event.Op.String()), util.Err(err))
				continue
			}
			w.log.Debug("Companion state reloaded", util.F("op", event.Op.String()))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			// Log error but continue running
			w.log.Error("Companion watch error", util.Err(err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
