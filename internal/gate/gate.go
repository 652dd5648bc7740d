// Package gate waits for the guest environment to be usable before any host
// networking is touched: first a network address, then a quorum of running
// services.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"homeport/internal/hostexec"

	"github.com/sirupsen/logrus"
)

const (
	DefaultAddressInterval = 2 * time.Second
	DefaultQuorumInterval  = 3 * time.Second
)

// AddressProber returns zero or more whitespace separated addresses of the
// guest environment.
type AddressProber interface {
	ProbeAddresses(ctx context.Context) (string, error)
}

// ServiceLister returns the names of services currently in the running state.
type ServiceLister interface {
	RunningServices(ctx context.Context) ([]string, error)
}

type Gate struct {
	Prober   AddressProber
	Services ServiceLister

	AddressInterval time.Duration
	QuorumInterval  time.Duration
}

func New(prober AddressProber, services ServiceLister) *Gate {
	return &Gate{
		Prober:          prober,
		Services:        services,
		AddressInterval: DefaultAddressInterval,
		QuorumInterval:  DefaultQuorumInterval,
	}
}

// WaitForAddress polls the prober until it reports an address and returns the
// first one. Empty output and probe failures are both treated as "not yet".
func (g *Gate) WaitForAddress(ctx context.Context, timeout time.Duration) (string, error) {
	var address string
	check := func(ctx context.Context) error {
		out, err := g.Prober.ProbeAddresses(ctx)
		if err != nil {
			if errors.Is(err, hostexec.ErrCommandNotFound) {
				return permanent(err)
			}
			return err
		}
		fields := strings.Fields(out)
		if len(fields) == 0 {
			return errNotReady
		}
		address = fields[0]
		return nil
	}
	notify := func(err error, attempt int) {
		if errors.Is(err, errNotReady) {
			logrus.Debugf("No address reported yet (attempt %d)", attempt)
			return
		}
		logrus.Warnf("Address probe failed (attempt %d): %v", attempt, err)
	}

	if err := pollUntil(ctx, "guest address", interval(g.AddressInterval, DefaultAddressInterval), timeout, check, notify); err != nil {
		return "", err
	}
	logrus.Infof("Guest address resolved to %s", address)
	return address, nil
}

// WaitForServiceQuorum polls until at least minCount distinct services are
// running. address is only used for logging.
func (g *Gate) WaitForServiceQuorum(ctx context.Context, address string, minCount int, timeout time.Duration) error {
	if minCount < 1 {
		return fmt.Errorf("quorum must be at least 1, got %d", minCount)
	}
	var running int
	check := func(ctx context.Context) error {
		names, err := g.Services.RunningServices(ctx)
		if err != nil {
			if errors.Is(err, hostexec.ErrCommandNotFound) {
				return permanent(err)
			}
			return err
		}
		running = CountDistinct(names)
		if running < minCount {
			return errNotReady
		}
		return nil
	}
	log := logrus.WithField("address", address)
	notify := func(err error, attempt int) {
		if errors.Is(err, errNotReady) {
			log.Debugf("%d/%d services running (attempt %d)", running, minCount, attempt)
			return
		}
		log.Warnf("Service query failed (attempt %d): %v", attempt, err)
	}

	phase := fmt.Sprintf("%d running services", minCount)
	if err := pollUntil(ctx, phase, interval(g.QuorumInterval, DefaultQuorumInterval), timeout, check, notify); err != nil {
		return err
	}
	log.Infof("Service quorum reached: %d/%d running", running, minCount)
	return nil
}

// CountDistinct counts distinct non-empty names, ignoring surrounding space.
func CountDistinct(names []string) int {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		seen[name] = struct{}{}
	}
	return len(seen)
}

func interval(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
