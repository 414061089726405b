package security

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/kbukum/httpkit/logger"
)

// WatchingProvider rebuilds its TLS config whenever one of the configured
// CA, certificate or key files changes on disk. A failed rebuild keeps the
// previous config.
type WatchingProvider struct {
	cfg     TLSConfig
	current atomic.Pointer[tls.Config]
	watcher *fsnotify.Watcher
	files   map[string]struct{}
	log     *logger.Logger

	rebuilds atomic.Int64
	done     chan struct{}
	stopOnce sync.Once
}

var _ TLSProvider = (*WatchingProvider)(nil)

// Watching builds c and starts watching the files it references. Close the
// provider to stop watching.
func Watching(c TLSConfig, log *logger.Logger) (*WatchingProvider, error) {
	if log == nil {
		log = logger.Nop()
	}
	built, err := c.Build()
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("security/watch: %w", err)
	}

	p := &WatchingProvider{
		cfg:     c,
		watcher: w,
		files:   make(map[string]struct{}),
		log:     log.WithComponent("tls-watch"),
		done:    make(chan struct{}),
	}
	p.current.Store(built)

	// Watch directories so atomic replace-by-rename is observed.
	dirs := make(map[string]struct{})
	for _, f := range c.Files() {
		abs, err := filepath.Abs(f)
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("security/watch: %w", err)
		}
		p.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("security/watch: watch %s: %w", d, err)
		}
	}

	go p.loop()
	return p, nil
}

// TLSConfig returns the most recently built config.
func (p *WatchingProvider) TLSConfig() (*tls.Config, error) {
	return p.current.Load(), nil
}

// Rebuilds returns how many successful rebuilds have happened.
func (p *WatchingProvider) Rebuilds() int64 { return p.rebuilds.Load() }

// Close stops watching. It is safe to call more than once.
func (p *WatchingProvider) Close() error {
	var err error
	p.stopOnce.Do(func() {
		err = p.watcher.Close()
		<-p.done
	})
	return err
}

func (p *WatchingProvider) loop() {
	defer close(p.done)
	for {
		select {
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			if _, watched := p.files[abs]; watched {
				p.rebuild(abs)
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.log.Warn("watcher error", logger.Fields(logger.FieldError, err))
		}
	}
}

func (p *WatchingProvider) rebuild(trigger string) {
	built, err := p.cfg.Build()
	if err != nil {
		// Files are often written in several steps; the next event retries.
		p.log.Debug("tls rebuild failed", logger.Fields("file", trigger, logger.FieldError, err))
		return
	}
	p.current.Store(built)
	p.rebuilds.Add(1)
	p.log.Info("tls config rebuilt", logger.Fields("file", trigger))
}
