// discovery.go announces running hosts on the local network over mDNS and
// lets joining peers find them without typing an address.
package discovery

import (
	"context"
	"fmt"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_partyline._tcp"
	Domain  = "local."
)

// Advertiser keeps a host's mDNS registration alive.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers the host under the given instance name.
func Advertise(instance string, port int) (*Advertiser, error) {
	server, err := zeroconf.Register(instance, Service, Domain, port, []string{"v=1"}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mdns service: %w", err)
	}
	return &Advertiser{server: server}, nil
}

func (a *Advertiser) Shutdown() {
	a.server.Shutdown()
}

// Browse returns the address of the first advertised host found, or fails
// when the context expires.
func Browse(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("create mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return "", fmt.Errorf("browse mdns: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("no host found on the local network")
		case entry, ok := <-entries:
			if !ok {
				return "", fmt.Errorf("no host found on the local network")
			}
			if entry == nil || len(entry.AddrIPv4) == 0 {
				continue
			}
			return fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port), nil
		}
	}
}
