package gateway

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/winspan/blocksync/internal/domains"
	"github.com/winspan/blocksync/pkg/logger"
)

// Applier pushes a computed block set onto a device as static redirect rules.
type Applier struct {
	RedirectIP string
	Comment    string

	log *logger.Logger
}

// NewApplier creates an Applier tagging every rule it creates with comment.
func NewApplier(redirectIP, comment string, log *logger.Logger) *Applier {
	return &Applier{RedirectIP: redirectIP, Comment: comment, log: log}
}

// Apply creates one redirect rule per domain in block, then flushes the
// device's resolver cache once. Rules are independent: a failed creation is
// logged and the batch continues, and the flush happens regardless. Domains
// are walked in sorted order only so logs are stable. Returns the domains a
// rule was created for, the number that failed, and the flush error if any.
func (a *Applier) Apply(cl Client, device string, block domains.Set) (applied []string, failed int, err error) {
	for _, name := range block.Sorted() {
		if err := cl.AddStaticRedirect(name, a.RedirectIP, a.Comment); err != nil {
			a.log.Error("device %s: add redirect for %s: %v", device, name, err)
			rulesFailed.WithLabelValues(device).Inc()
			failed++
			continue
		}
		a.log.Info("device %s: blocked %s", device, name)
		rulesApplied.WithLabelValues(device).Inc()
		applied = append(applied, name)
	}

	if flushErr := cl.FlushResolverCache(); flushErr != nil {
		a.log.Error("device %s: %v", device, flushErr)
		return applied, failed, flushErr
	}
	return applied, failed, nil
}

var (
	rulesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blocksync_rules_applied_total",
			Help: "Total redirect rules created, by device",
		},
		[]string{"device"},
	)
	rulesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blocksync_rule_failures_total",
			Help: "Total redirect rule creation failures, by device",
		},
		[]string{"device"},
	)
)

func init() {
	prometheus.MustRegister(rulesApplied, rulesFailed)
}
