package blocklist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/winspan/blocksync/internal/domains"
	"github.com/winspan/blocksync/pkg/logger"
	"github.com/winspan/blocksync/pkg/utils"
)

// Cache owns the on-disk denied-domain file. It is the sole writer of that
// file; everything downstream treats the refreshed set as read-only input.
type Cache struct {
	path        string
	sourcesPath string
	maxAgeHours float64
	fetcher     *Fetcher
	log         *logger.Logger

	// injectable clock so the freshness boundary is testable
	now func() time.Time
}

// NewCache wires a freshness cache over the given denied-domain file.
func NewCache(path, sourcesPath string, maxAgeHours float64, fetcher *Fetcher, log *logger.Logger) *Cache {
	return &Cache{
		path:        path,
		sourcesPath: sourcesPath,
		maxAgeHours: maxAgeHours,
		fetcher:     fetcher,
		log:         log,
		now:         time.Now,
	}
}

// DeniedDomains returns the current denied-domain set, refreshing the backing
// file from the configured sources when it is older than the freshness
// threshold. The comparison is a strict greater-than: a file exactly at the
// threshold age is still fresh. A missing file counts as infinitely old.
// When a refresh fails but an aggregated set from an earlier run is already on
// disk, that last-good set stays authoritative for this run and the failure is
// only logged. Without a prior set the failure is fatal: no device can be
// reconciled against an empty denied list.
func (c *Cache) DeniedDomains(ctx context.Context) (domains.Set, error) {
	refresh := false
	hadFile := true

	info, err := os.Stat(c.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := utils.EnsureDir(filepath.Dir(c.path)); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
		// empty placeholder, refreshed below
		if err := os.WriteFile(c.path, nil, 0644); err != nil {
			return nil, fmt.Errorf("create cache file: %w", err)
		}
		refresh = true
		hadFile = false
	case err != nil:
		return nil, fmt.Errorf("stat cache file: %w", err)
	default:
		age := c.now().UTC().Sub(info.ModTime().UTC()).Hours()
		refresh = age > c.maxAgeHours
	}

	if refresh {
		if err := c.refresh(ctx); err != nil {
			if !hadFile {
				return nil, err
			}
			c.log.Error("denied-domain refresh failed, keeping last-good set: %v", err)
		}
	}

	return c.load()
}

// refresh reloads the source list, aggregates all sources and atomically
// replaces the cache file. On any failure the old file content is untouched.
func (c *Cache) refresh(ctx context.Context) error {
	raw, err := os.ReadFile(c.sourcesPath)
	if err != nil {
		return fmt.Errorf("read sources file: %w", err)
	}
	sources := domains.Lines(string(raw))
	if len(sources) == 0 {
		return fmt.Errorf("sources file %s lists no sources", c.sourcesPath)
	}

	denied, err := c.fetcher.FetchAll(ctx, sources)
	if err != nil {
		return err
	}

	if err := c.writeAtomic(denied); err != nil {
		return err
	}

	cacheRefreshes.Inc()
	c.log.Info("refreshed denied domains: %d entries from %d sources", len(denied), len(sources))
	return nil
}

func (c *Cache) writeAtomic(set domains.Set) error {
	tmp := c.path + ".tmp"
	content := strings.Join(set.Sorted(), "\n")
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return fmt.Errorf("write cache temp file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

func (c *Cache) load() (domains.Set, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return domains.ParseList(string(raw)), nil
}

// LoadAllowList reads the allow-list file as a domain set. An empty path means
// no allow-list is configured and yields an empty set.
func LoadAllowList(path string) (domains.Set, error) {
	if path == "" {
		return domains.Set{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read allow-list: %w", err)
	}
	return domains.ParseList(string(raw)), nil
}

var cacheRefreshes = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "blocksync_cache_refreshes_total",
		Help: "Total successful denied-domain cache refreshes",
	},
)

func init() {
	prometheus.MustRegister(cacheRefreshes)
}
