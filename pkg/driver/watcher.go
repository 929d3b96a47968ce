package driver

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ManifestChangeFunc is called with the previous and the freshly parsed
// manifest after the file changes. An error keeps the previous manifest.
type ManifestChangeFunc func(old, updated *Manifest) error

// ManifestWatcher reloads a manifest file whenever it is written.
type ManifestWatcher struct {
	path        string
	watcher     *fsnotify.Watcher
	onChange    ManifestChangeFunc
	log         *logrus.Entry
	reloadDelay time.Duration

	mu       sync.Mutex
	manifest *Manifest
	timer    *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// WatchManifest loads path and starts watching it. The directory is watched
// rather than the file so editors that replace the file are still seen.
func WatchManifest(path string, delay time.Duration, log *logrus.Entry, onChange ManifestChangeFunc) (*ManifestWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest watcher: resolve %s: %w", path, err)
	}
	initial, err := LoadManifest(abs)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	mw := &ManifestWatcher{
		path:        abs,
		watcher:     fw,
		onChange:    onChange,
		log:         log.WithField("manifest", abs),
		reloadDelay: delay,
		manifest:    initial,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go mw.watchLoop()
	return mw, nil
}

// Manifest returns the most recently loaded manifest.
func (mw *ManifestWatcher) Manifest() *Manifest {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.manifest
}

func (mw *ManifestWatcher) Close() error {
	mw.cancel()
	err := mw.watcher.Close()
	<-mw.done
	mw.mu.Lock()
	if mw.timer != nil {
		mw.timer.Stop()
	}
	mw.mu.Unlock()
	return err
}

func (mw *ManifestWatcher) watchLoop() {
	defer close(mw.done)
	for {
		select {
		case <-mw.ctx.Done():
			return
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			mw.handleEvent(event)
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			mw.log.WithError(err).Warn("manifest watcher error")
		}
	}
}

func (mw *ManifestWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != mw.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	// Writes arrive in bursts; reload once they settle.
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.timer != nil {
		mw.timer.Stop()
	}
	mw.timer = time.AfterFunc(mw.reloadDelay, func() {
		if err := mw.reload(); err != nil {
			mw.log.WithError(err).Error("failed to reload manifest")
		}
	})
}

func (mw *ManifestWatcher) reload() error {
	if mw.ctx.Err() != nil {
		return nil
	}
	updated, err := LoadManifest(mw.path)
	if err != nil {
		return err
	}
	old := mw.Manifest()
	if mw.onChange != nil {
		if err := mw.onChange(old, updated); err != nil {
			return fmt.Errorf("manifest change callback failed: %w", err)
		}
	}
	mw.mu.Lock()
	mw.manifest = updated
	mw.mu.Unlock()
	mw.log.Info("manifest reloaded")
	return nil
}
