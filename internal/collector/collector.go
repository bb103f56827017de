package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"ipcollector/internal/domain"
	"ipcollector/internal/storage"
)

// Collector records the first IP seen for every request whose hostname
// matches one of the configured patterns. Each IP is recorded at most once.
type Collector struct {
	store    *storage.Store
	cache    *RecordCache
	patterns patternCache
	initOnce singleflight.Group
	now      func() time.Time
}

type Option func(*Collector)

func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

func New(store *storage.Store, opts ...Option) *Collector {
	c := &Collector{
		store: store,
		cache: NewRecordCache(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start loads the cache and then subscribes to storage changes. The returned
// function unsubscribes.
func (c *Collector) Start(ctx context.Context) (func(), error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	return c.store.Subscribe(c.HandleChange), nil
}

// Initialize rebuilds the cache from storage. Concurrent callers share one load.
func (c *Collector) Initialize(ctx context.Context) error {
	_, err, _ := c.initOnce.Do("initialize", func() (any, error) {
		records, revision, err := c.store.LoadRecordsRevision(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Rebuild(records, revision)
		log.Info("Initialized IP cache from storage", "ips", len(records), "revision", revision)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("collector: initialize cache: %w", err)
	}
	return nil
}

// Observe processes one request-lifecycle notification. Only persistence
// failures are returned; bad URLs and bad patterns are logged and skipped.
func (c *Collector) Observe(ctx context.Context, obs domain.Observation) error {
	if !c.cache.Initialized() {
		log.Debug("IP cache not initialized, reinitializing")
		if err := c.Initialize(ctx); err != nil {
			return err
		}
	}

	if obs.IP == "" {
		log.Debug("No IP in observation", "url", obs.URL, "event", obs.Event)
		return nil
	}

	patterns, err := c.store.LoadPatterns(ctx)
	if err != nil {
		return fmt.Errorf("collector: load patterns: %w", err)
	}

	host, err := Hostname(obs.URL)
	if err != nil {
		log.Error("Error processing URL", "url", obs.URL, "error", err)
		return nil
	}
	log.Debug("Testing hostname", "host", host)

	pattern, matched := c.match(host, patterns)
	if !matched {
		return nil
	}
	log.Debug("Match found", "host", host, "pattern", pattern, "ip", obs.IP)

	return c.record(ctx, obs.IP, host)
}

// match returns the first pattern, in list order, that matches host.
func (c *Collector) match(host string, patterns []string) (string, bool) {
	for _, pattern := range patterns {
		re, err := c.patterns.compile(pattern)
		if err != nil {
			log.Error("Invalid regex", "pattern", pattern, "error", err)
			continue
		}
		if re.MatchString(host) {
			return pattern, true
		}
	}
	return "", false
}

func (c *Collector) record(ctx context.Context, ip, host string) error {
	if _, exists := c.cache.Get(ip); exists {
		// Writers in other processes do not notify this one, so a hit only
		// counts while the cache is at the stored revision.
		if err := c.refresh(ctx); err != nil {
			return fmt.Errorf("collector: record %s: %w", ip, err)
		}
		if _, exists := c.cache.Get(ip); exists {
			log.Debug("IP already exists, skipping", "ip", ip)
			return nil
		}
	}

	candidate := domain.IPRecord{
		IP:            ip,
		FirstSeenHost: host,
		FirstSeenAt:   c.now().UTC().Truncate(time.Millisecond),
	}

	inserted := false
	records, revision, err := c.store.UpdateRecords(ctx, func(current []domain.IPRecord) ([]domain.IPRecord, bool, error) {
		if domain.ContainsIP(current, ip) {
			return current, false, nil
		}
		inserted = true
		return append(current, candidate), true, nil
	})
	if err != nil {
		return fmt.Errorf("collector: record %s: %w", ip, err)
	}

	c.cache.Rebuild(records, revision)
	if inserted {
		log.Info("IP recorded", "ip", ip, "host", host, "total", len(records))
	} else {
		log.Debug("IP already stored by another writer, skipping", "ip", ip)
	}
	return nil
}

// refresh reloads the cache when its revision differs from storage.
func (c *Collector) refresh(ctx context.Context) error {
	revision, err := c.store.Revision(ctx, storage.KeyCollectedIPs)
	if err != nil {
		return err
	}
	if revision == c.cache.Revision() {
		return nil
	}

	records, revision, err := c.store.LoadRecordsRevision(ctx)
	if err != nil {
		return err
	}
	if c.cache.Rebuild(records, revision) {
		log.Debug("IP cache behind storage, reloaded", "ips", len(records), "revision", revision)
	}
	return nil
}

// HandleChange keeps the caches in line with storage. A collectedIPs change
// replaces the record cache outright; it is never merged.
func (c *Collector) HandleChange(change storage.Change) {
	switch change.Key {
	case storage.KeyCollectedIPs:
		records, err := storage.DecodeRecords(change.NewValue)
		if err != nil {
			log.Error("Storage changed with unreadable records, dropping IP cache", "error", err)
			c.cache.Reset()
			return
		}
		if !c.cache.Rebuild(records, change.Revision) {
			log.Debug("Stale storage change ignored", "revision", change.Revision, "source", change.Source)
			return
		}
		log.Debug("Storage changed, IP cache rebuilt", "ips", len(records), "revision", change.Revision, "source", change.Source)
	case storage.KeyRegexPatterns:
		patterns, err := storage.DecodePatterns(change.NewValue)
		if err != nil {
			c.patterns.reset()
			return
		}
		c.patterns.retain(patterns)
	}
}

// HandleLifecycle reacts to an installed/updated notification by reloading the cache.
func (c *Collector) HandleLifecycle(ctx context.Context, reason string) error {
	log.Info("Collector installed/updated", "reason", reason)
	return c.Initialize(ctx)
}

// Cache exposes the record cache for diagnostics.
func (c *Collector) Cache() *RecordCache {
	return c.cache
}
