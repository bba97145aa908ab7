package gateway

import (
	"context"
	"fmt"
	"time"

	routeros "github.com/go-routeros/routeros/v3"

	"github.com/winspan/blocksync/internal/domains"
	"github.com/winspan/blocksync/pkg/config"
	"github.com/winspan/blocksync/pkg/utils"
)

const (
	apiPort     = "8728"
	dialTimeout = 10 * time.Second
)

// routerOSClient implements Client over the RouterOS binary API.
type routerOSClient struct {
	conn *routeros.Client
}

// DialRouterOS connects and authenticates against a RouterOS device. The
// library negotiates both the post-6.43 plain login and the legacy
// challenge-response login, so the device's login_method only gates config
// validation.
func DialRouterOS(ctx context.Context, dev config.Device) (Client, error) {
	addr := dev.Address
	if !utils.HasPort(addr) {
		addr = addr + ":" + apiPort
	}

	conn, err := routeros.DialTimeout(addr, dev.Username, dev.Password, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &routerOSClient{conn: conn}, nil
}

func (c *routerOSClient) StaticRedirectDomains() (domains.Set, error) {
	reply, err := c.conn.Run("/ip/dns/static/print", "=.proplist=name")
	if err != nil {
		return nil, fmt.Errorf("list static entries: %w", err)
	}

	set := domains.Set{}
	for _, re := range reply.Re {
		if d, ok := domains.Normalize(re.Map["name"]); ok {
			set.Add(d)
		}
	}
	return set, nil
}

func (c *routerOSClient) ResolvedDomains() (domains.Set, error) {
	// A and CNAME records only, ORed per the API query language
	reply, err := c.conn.Run("/ip/dns/cache/all/print",
		"=.proplist=name,type", "?type=A", "?type=CNAME", "?#|")
	if err != nil {
		return nil, fmt.Errorf("list resolver cache: %w", err)
	}

	set := domains.Set{}
	for _, re := range reply.Re {
		if d, ok := domains.Normalize(re.Map["name"]); ok {
			set.Add(d)
		}
	}
	return set, nil
}

func (c *routerOSClient) AddStaticRedirect(domain, redirectIP, comment string) error {
	_, err := c.conn.Run("/ip/dns/static/add",
		"=name="+domain,
		"=address="+redirectIP,
		"=comment="+comment,
		"=disabled=no")
	if err != nil {
		return fmt.Errorf("add static entry for %s: %w", domain, err)
	}
	return nil
}

func (c *routerOSClient) FlushResolverCache() error {
	if _, err := c.conn.Run("/ip/dns/cache/flush"); err != nil {
		return fmt.Errorf("flush resolver cache: %w", err)
	}
	return nil
}

func (c *routerOSClient) Close() error {
	c.conn.Close()
	return nil
}
