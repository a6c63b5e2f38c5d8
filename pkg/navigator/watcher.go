package navigator

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/topolord/pkg/cache"
	"github.com/rmax-ai/topolord/pkg/store"
)

// DefaultPollInterval is how often the watcher checks the change stamp.
const DefaultPollInterval = 5 * time.Second

// Watcher flushes the lookup cache when the document store changes.
type Watcher struct {
	stamper  store.ChangeStamper
	cache    cache.Cache
	interval time.Duration

	mu       sync.Mutex
	last     int64
	baseline bool
}

// NewWatcher creates a watcher. A non-positive interval uses
// DefaultPollInterval.
func NewWatcher(stamper store.ChangeStamper, c cache.Cache, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{stamper: stamper, cache: c, interval: interval}
}

// Check compares the change stamp with the last one seen and invalidates
// the cache when it moved. The first call only records a baseline.
func (w *Watcher) Check(ctx context.Context) (bool, error) {
	stamp, err := w.stamper.ChangeStamp(ctx)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.baseline {
		w.baseline = true
		w.last = stamp
		return false, nil
	}
	if stamp == w.last {
		return false, nil
	}
	log.WithFields(log.Fields{"from": w.last, "to": stamp}).Info("documents changed, invalidating cache")
	w.last = stamp
	if w.cache != nil {
		w.cache.InvalidateAll(ctx)
	}
	TopolordCacheInvalidations.Inc()
	return true, nil
}

// Start polls until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.WithField("interval", w.interval).Info("change watcher started")

	if _, err := w.Check(ctx); err != nil {
		log.WithError(err).Warn("change watcher: initial check failed")
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("change watcher stopping")
			return
		case <-ticker.C:
			if _, err := w.Check(ctx); err != nil {
				log.WithError(err).Warn("change watcher: check failed")
			}
		}
	}
}
