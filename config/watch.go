package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/celer/vkfractal/params"
)

// DefaultDebounce is how long Watch waits for writes to settle.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads the feed section of a config file when it changes.
type Watcher struct {
	path     string
	log      *zap.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
	feeds    chan params.Feed
	// override is applied to every reloaded config, may be nil.
	override func(*Config)
}

// NewWatcher watches the directory of path, so editors that replace the file
// are followed too.
func NewWatcher(path string, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", abs, err)
	}
	return &Watcher{
		path:     abs,
		log:      log,
		debounce: DefaultDebounce,
		watcher:  w,
		feeds:    make(chan params.Feed, 1),
	}, nil
}

// Feeds delivers each valid reloaded feed. Only the latest unread one is kept.
// The channel is closed when Run returns.
func (w *Watcher) Feeds() <-chan params.Feed {
	return w.feeds
}

// Run processes file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.feeds)
	defer w.watcher.Close()

	timer := time.NewTimer(0)
	<-timer.C

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				w.log.Debug("config file changed", zap.String("file", ev.Name), zap.Stringer("op", ev.Op))
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("config watcher error", zap.Error(err))
		case <-timer.C:
			w.reload()
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}

func (w *Watcher) reload() {
	c, err := Load(w.path)
	if err == nil && w.override != nil {
		w.override(&c)
		err = c.Validate()
	}
	if err != nil {
		w.log.Warn("ignoring config change", zap.Error(err))
		return
	}
	feed := c.Feed.Params()
	w.log.Info("feed reloaded", zap.String("mode", string(feed.Mode)))

	select {
	case w.feeds <- feed:
	default:
		select {
		case <-w.feeds:
		default:
		}
		w.feeds <- feed
	}
}
