package services

import (
	"context"
	"fmt"
	"time"

	"homeport/internal/forward"
	"homeport/internal/gate"
	"homeport/internal/models"

	"github.com/sirupsen/logrus"
)

// Journal stores the forwards applied by a run.
type Journal interface {
	RecordForwards(forwards []models.PortForward) error
}

// ComposeUpper brings the compose project up.
type ComposeUpper interface {
	Up(ctx context.Context) error
}

// Deployment runs the readiness gate and then syncs every port to the
// resolved guest address.
type Deployment struct {
	Gate      *gate.Gate
	Compose   ComposeUpper // nil skips `compose up`
	Forwarder *forward.Forwarder
	Journal   Journal // optional
	Backend   string

	Ports       []int
	MinServices int
	Wait        time.Duration
}

// Result describes a successful run.
type Result struct {
	Address  string
	Mappings []forward.PortMapping
}

// Run waits for the guest address and the service quorum, then rewrites the
// host rules. Nothing on the host is changed unless both waits succeed.
func (d *Deployment) Run(ctx context.Context) (*Result, error) {
	address, err := d.Gate.WaitForAddress(ctx, d.Wait)
	if err != nil {
		return nil, err
	}

	if d.Compose != nil {
		if err := d.Compose.Up(ctx); err != nil {
			return nil, err
		}
	}

	if err := d.Gate.WaitForServiceQuorum(ctx, address, d.MinServices, d.Wait); err != nil {
		return nil, err
	}

	return d.Sync(ctx, address)
}

// Sync points every configured port at address and journals the outcome.
func (d *Deployment) Sync(ctx context.Context, address string) (*Result, error) {
	mappings, err := d.Forwarder.SyncAll(ctx, d.Ports, address)
	d.record(mappings)
	if err != nil {
		return &Result{Address: address, Mappings: mappings}, fmt.Errorf("syncing forwards to %s: %w", address, err)
	}
	return &Result{Address: address, Mappings: mappings}, nil
}

func (d *Deployment) record(mappings []forward.PortMapping) {
	if d.Journal == nil || len(mappings) == 0 {
		return
	}
	rows := make([]models.PortForward, 0, len(mappings))
	for _, m := range mappings {
		rows = append(rows, models.PortForward{
			PublicPort:    m.ListenPort,
			ListenAddress: m.ListenAddress,
			TargetNode:    m.TargetAddress,
			TargetPort:    m.TargetPort,
			Protocol:      m.Protocol,
			RuleName:      m.RuleName,
			Backend:       d.Backend,
		})
	}
	if err := d.Journal.RecordForwards(rows); err != nil {
		logrus.Warnf("Failed to journal %d forwards: %v", len(rows), err)
	}
}
