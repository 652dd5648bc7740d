//go:build linux

package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/vishvananda/netlink"
)

// InterfaceProbe reports the global unicast addresses of a local link. It is
// used when homeport runs on the Linux side, e.g. against a VM bridge or
// inside the guest itself.
type InterfaceProbe struct {
	Link string
}

func (p *InterfaceProbe) ProbeAddresses(ctx context.Context) (string, error) {
	link, err := netlink.LinkByName(p.Link)
	if err != nil {
		return "", fmt.Errorf("looking up link %s: %w", p.Link, err)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return "", fmt.Errorf("listing addresses of %s: %w", p.Link, err)
	}
	return formatAddrs(addrs), nil
}

// formatAddrs renders addresses the way `hostname -I` does: IPv4 first,
// space separated, no loopback or link-local entries.
func formatAddrs(addrs []netlink.Addr) string {
	var v4, v6 []string
	for _, a := range addrs {
		if a.IPNet == nil || !a.IP.IsGlobalUnicast() {
			continue
		}
		if a.IP.To4() != nil {
			v4 = append(v4, a.IP.String())
		} else {
			v6 = append(v6, a.IP.String())
		}
	}
	return strings.Join(append(v4, v6...), " ")
}
