// Package gateway talks to the managed gateway devices: reading their DNS
// state and writing static redirect rules.
package gateway

import (
	"context"

	"github.com/winspan/blocksync/internal/domains"
	"github.com/winspan/blocksync/pkg/config"
)

// Client is the narrow view of one connected gateway device. The read
// operations are point-in-time snapshots of the device's DNS state; the wire
// protocol behind them is an implementation detail.
type Client interface {
	// StaticRedirectDomains lists domains that already have a static
	// redirect rule on the device.
	StaticRedirectDomains() (domains.Set, error)

	// ResolvedDomains lists domains the device's resolver has recently
	// answered for, restricted to address and canonical-name records.
	ResolvedDomains() (domains.Set, error)

	// AddStaticRedirect creates a static rule answering queries for domain
	// with redirectIP, tagged with comment.
	AddStaticRedirect(domain, redirectIP, comment string) error

	// FlushResolverCache drops the device's resolver cache so future
	// queries go through the static entries.
	FlushResolverCache() error

	Close() error
}

// Dialer opens a Client for a configured device.
type Dialer func(ctx context.Context, dev config.Device) (Client, error)
