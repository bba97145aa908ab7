package blocklist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/winspan/blocksync/internal/domains"
	"github.com/winspan/blocksync/pkg/logger"
)

// MaxListSize caps how much of a remote list body we read (10MB).
const MaxListSize = 10 * 1024 * 1024

// SourceStatus tracks the last outcome per blocklist source.
type SourceStatus struct {
	URL          string        `json:"url"`
	LastSync     time.Time     `json:"last_sync"`
	LastSuccess  time.Time     `json:"last_success"`
	LastError    string        `json:"last_error"`
	DomainCount  int           `json:"domain_count"`
	Status       string        `json:"status"` // pending, success, error
	ResponseTime time.Duration `json:"response_time"`
}

// Fetcher downloads remote blocklists and normalizes them into domain sets.
type Fetcher struct {
	httpc *http.Client
	log   *logger.Logger

	mu      sync.RWMutex
	sources map[string]*SourceStatus
}

// NewFetcher creates a Fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration, log *logger.Logger) *Fetcher {
	return &Fetcher{
		httpc:   &http.Client{Timeout: timeout},
		log:     log,
		sources: make(map[string]*SourceStatus),
	}
}

// FetchAll retrieves every source and unions the parsed domain sets. Any
// single source failure aborts the whole aggregation: a partially-aggregated
// set must never be treated as complete.
func (f *Fetcher) FetchAll(ctx context.Context, sources []string) (domains.Set, error) {
	all := domains.Set{}
	for _, url := range sources {
		set, err := f.fetchOne(ctx, url)
		if err != nil {
			sourceFailures.WithLabelValues(url).Inc()
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		all = all.Union(set)
	}
	return all, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) (domains.Set, error) {
	start := time.Now()
	body, err := f.fetch(ctx, url)
	responseTime := time.Since(start)

	if err != nil {
		f.updateSourceStatus(url, "error", err.Error(), 0, responseTime)
		return nil, err
	}

	set := domains.ParseHosts(string(body))
	f.updateSourceStatus(url, "success", "", len(set), responseTime)
	f.log.Debug("source %s: %d domains in %v", url, len(set), responseTime)
	return set, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, errors.New(resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, MaxListSize))
}

func (f *Fetcher) updateSourceStatus(url, status, errMsg string, count int, responseTime time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	source, ok := f.sources[url]
	if !ok {
		source = &SourceStatus{URL: url, Status: "pending"}
		f.sources[url] = source
	}
	source.Status = status
	source.LastSync = time.Now()
	source.ResponseTime = responseTime
	if status == "success" {
		source.LastSuccess = time.Now()
		source.LastError = ""
		source.DomainCount = count
	} else {
		source.LastError = errMsg
	}
}

// SourceStatuses returns a snapshot of per-source sync state.
func (f *Fetcher) SourceStatuses() []SourceStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]SourceStatus, 0, len(f.sources))
	for _, s := range f.sources {
		out = append(out, *s)
	}
	return out
}

var sourceFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "blocksync_source_fetch_failures_total",
		Help: "Total blocklist source fetch failures",
	},
	[]string{"source"},
)

func init() {
	prometheus.MustRegister(sourceFailures)
}
