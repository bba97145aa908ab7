// Package reconcile computes which domains need a new blocking rule on a
// device for one run.
package reconcile

import "github.com/winspan/blocksync/internal/domains"

// BlockSet returns the domains that must receive a new redirect rule:
//
//	((resolved − static) − allowed) ∩ denied
//
// Only domains the device actually resolved recently are candidates, minus
// those that already have a static rule and those explicitly allowed; of the
// candidates, only ones on the aggregated denylist are selected. The two
// differences are evaluated in exactly this order. Pure set algebra, no side
// effects.
func BlockSet(denied, static, resolved, allowed domains.Set) domains.Set {
	candidates := resolved.Diff(static).Diff(allowed)
	return candidates.Intersect(denied)
}
