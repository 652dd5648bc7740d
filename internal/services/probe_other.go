//go:build !linux

package services

import (
	"context"
	"errors"
)

// InterfaceProbe needs netlink and is only available on linux.
type InterfaceProbe struct {
	Link string
}

func (p *InterfaceProbe) ProbeAddresses(ctx context.Context) (string, error) {
	return "", errors.New("interface address probe is only supported on linux")
}
