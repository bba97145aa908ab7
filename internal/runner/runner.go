// Package runner drives one full pipeline pass: refresh the denied-domain
// cache, then snapshot, reconcile and apply rules on every configured device.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/winspan/blocksync/internal/blocklist"
	"github.com/winspan/blocksync/internal/domains"
	"github.com/winspan/blocksync/internal/gateway"
	"github.com/winspan/blocksync/internal/reconcile"
	"github.com/winspan/blocksync/internal/storage"
	"github.com/winspan/blocksync/pkg/config"
	"github.com/winspan/blocksync/pkg/logger"
)

// DeviceStatus tags the outcome of processing one device.
type DeviceStatus string

const (
	DeviceOK            DeviceStatus = "ok"
	DeviceConnectFailed DeviceStatus = "connect_failed"
	DevicePartial       DeviceStatus = "partial"
)

// DeviceResult is the per-device outcome of one run.
type DeviceResult struct {
	Device  string       `json:"device"`
	Status  DeviceStatus `json:"status"`
	Blocked []string     `json:"blocked,omitempty"`
	Failed  int          `json:"failed,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Summary is the outcome of one whole run.
type Summary struct {
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	DeniedCount int            `json:"denied_count"`
	Devices     []DeviceResult `json:"devices"`
	Error       string         `json:"error,omitempty"`
}

// Runner owns the pipeline wiring. Devices are processed sequentially; they
// share no mutable state besides the already-finalized denied-domain file.
type Runner struct {
	cfg     *config.Config
	log     *logger.Logger
	fetcher *blocklist.Fetcher
	cache   *blocklist.Cache
	applier *gateway.Applier
	dial    gateway.Dialer
	history *storage.History // nil when history is disabled

	mu   sync.RWMutex
	last *Summary
}

// New wires a Runner from the config. history may be nil.
func New(cfg *config.Config, log *logger.Logger, dial gateway.Dialer, history *storage.History) *Runner {
	fetcher := blocklist.NewFetcher(cfg.GetFetchTimeout(), log)
	return &Runner{
		cfg:     cfg,
		log:     log,
		fetcher: fetcher,
		cache: blocklist.NewCache(cfg.Blocklist.CacheFile, cfg.Blocklist.SourcesFile,
			cfg.Blocklist.MaxAgeHours, fetcher, log),
		applier: gateway.NewApplier(cfg.Blocklist.RedirectIP, cfg.Blocklist.RuleComment, log),
		dial:    dial,
		history: history,
	}
}

// RunOnce executes one full pass. Device connection failures are reported in
// the summary but do not fail the run; a denied-domain cache failure does,
// since no device can be reconciled without it.
func (r *Runner) RunOnce(ctx context.Context) (*Summary, error) {
	summary := &Summary{StartedAt: time.Now()}
	runsTotal.Inc()

	denied, err := r.cache.DeniedDomains(ctx)
	if err != nil {
		summary.Error = err.Error()
		summary.FinishedAt = time.Now()
		r.finish(summary)
		runFailures.Inc()
		return summary, fmt.Errorf("denied domains: %w", err)
	}
	summary.DeniedCount = len(denied)

	allowed, err := blocklist.LoadAllowList(r.cfg.Blocklist.AllowFile)
	if err != nil {
		summary.Error = err.Error()
		summary.FinishedAt = time.Now()
		r.finish(summary)
		runFailures.Inc()
		return summary, err
	}

	for _, dev := range r.cfg.Devices {
		res := r.processDevice(ctx, dev, denied, allowed)
		summary.Devices = append(summary.Devices, res)
	}

	summary.FinishedAt = time.Now()
	r.finish(summary)
	return summary, nil
}

// processDevice runs the snapshot+reconcile+apply sequence on one device. All
// failures are folded into the tagged result; none of them abort the run.
func (r *Runner) processDevice(ctx context.Context, dev config.Device, denied, allowed domains.Set) DeviceResult {
	r.log.Info("processing device %s (%s)", dev.Name, dev.Address)

	cl, err := r.dial(ctx, dev)
	if err != nil {
		r.log.Error("device %s: connect: %v", dev.Name, err)
		devicesSkipped.Inc()
		return DeviceResult{Device: dev.Name, Status: DeviceConnectFailed, Error: err.Error()}
	}
	defer cl.Close()

	static, err := cl.StaticRedirectDomains()
	if err != nil {
		r.log.Error("device %s: %v", dev.Name, err)
		devicesSkipped.Inc()
		return DeviceResult{Device: dev.Name, Status: DeviceConnectFailed, Error: err.Error()}
	}

	resolved, err := cl.ResolvedDomains()
	if err != nil {
		r.log.Error("device %s: %v", dev.Name, err)
		devicesSkipped.Inc()
		return DeviceResult{Device: dev.Name, Status: DeviceConnectFailed, Error: err.Error()}
	}

	block := reconcile.BlockSet(denied, static, resolved, allowed)
	r.log.Debug("device %s: %d resolved, %d static, %d to block",
		dev.Name, len(resolved), len(static), len(block))

	applied, failed, flushErr := r.applier.Apply(cl, dev.Name, block)

	res := DeviceResult{Device: dev.Name, Status: DeviceOK, Blocked: applied, Failed: failed}
	if failed > 0 || flushErr != nil {
		res.Status = DevicePartial
		if flushErr != nil {
			res.Error = flushErr.Error()
		}
	}
	return res
}

// finish stores the summary, records history and updates metrics.
func (r *Runner) finish(s *Summary) {
	r.mu.Lock()
	r.last = s
	r.mu.Unlock()

	if r.history == nil {
		return
	}

	rec := storage.RunRecord{
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
		DeniedCount: s.DeniedCount,
		Error:       s.Error,
	}
	for _, d := range s.Devices {
		switch d.Status {
		case DeviceConnectFailed:
			rec.DevicesSkipped++
		default:
			rec.DevicesOK++
		}
		rec.RulesApplied += len(d.Blocked)
		rec.RuleFailures += d.Failed
	}

	runID, err := r.history.RecordRun(rec)
	if err != nil {
		r.log.Error("record run history: %v", err)
		return
	}
	for _, d := range s.Devices {
		if err := r.history.RecordBlocked(runID, d.Device, d.Blocked); err != nil {
			r.log.Error("record blocked domains: %v", err)
		}
	}
}

// LastSummary returns the most recent run summary, or nil before the first
// run completes.
func (r *Runner) LastSummary() *Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// SourceStatuses exposes per-source fetch state for the admin API.
func (r *Runner) SourceStatuses() []blocklist.SourceStatus {
	return r.fetcher.SourceStatuses()
}

// Start runs the pipeline immediately and then on every tick until ctx is
// cancelled. Scheduled runs never overlap; the loop is strictly sequential.
func (r *Runner) Start(ctx context.Context) {
	iv := r.cfg.GetDaemonInterval()
	ticker := time.NewTicker(iv)
	defer ticker.Stop()

	if _, err := r.RunOnce(ctx); err != nil {
		r.log.Error("run: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("run: %v", err)
			}
		}
	}
}

var (
	runsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blocksync_runs_total",
		Help: "Total pipeline runs",
	})
	runFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blocksync_run_failures_total",
		Help: "Total pipeline runs aborted before device processing",
	})
	devicesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blocksync_devices_skipped_total",
		Help: "Total devices skipped due to connection or query failures",
	})
)

func init() {
	prometheus.MustRegister(runsTotal, runFailures, devicesSkipped)
}
