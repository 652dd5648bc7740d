// Package forward keeps host NAT forwards and firewall allow-rules pointed at
// the guest address, one pair per port.
package forward

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
)

const (
	DefaultListenAddress = "0.0.0.0"
	DefaultRulePrefix    = "WSL Port "
	ProtocolTCP          = "TCP"
)

// ErrNotFound is returned by backends when the entry to delete does not exist.
var ErrNotFound = errors.New("rule not found")

// NATTable manages inbound address:port forwards on the host.
type NATTable interface {
	// DeleteForward removes the forward listening on listenAddress:port,
	// whatever its target. It returns ErrNotFound when there is none.
	DeleteForward(ctx context.Context, listenAddress string, port int) error
	AddForward(ctx context.Context, listenAddress string, port int, target string) error
}

// Firewall manages named inbound TCP allow-rules on the host.
type Firewall interface {
	// DeleteRule returns ErrNotFound when no rule has that name.
	DeleteRule(ctx context.Context, name string) error
	AddRule(ctx context.Context, name string, port int) error
}

// PortMapping is one forward installed by SyncPort.
type PortMapping struct {
	ListenAddress string `json:"listen_address"`
	ListenPort    int    `json:"listen_port"`
	Protocol      string `json:"protocol"`
	TargetAddress string `json:"target_address"`
	TargetPort    int    `json:"target_port"`
	RuleName      string `json:"rule_name"`
}

// OperationError reports a host rule change that failed for a reason other
// than the entry being absent.
type OperationError struct {
	Op   string
	Port int
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("port %d: %s: %v", e.Port, e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

type Forwarder struct {
	NAT           NATTable
	Firewall      Firewall
	ListenAddress string
	RulePrefix    string
}

func New(nat NATTable, fw Firewall) *Forwarder {
	return &Forwarder{
		NAT:           nat,
		Firewall:      fw,
		ListenAddress: DefaultListenAddress,
		RulePrefix:    DefaultRulePrefix,
	}
}

// RuleName is the firewall rule identity for port.
func (f *Forwarder) RuleName(port int) string {
	prefix := f.RulePrefix
	if prefix == "" {
		prefix = DefaultRulePrefix
	}
	return prefix + strconv.Itoa(port)
}

func (f *Forwarder) listenAddress() string {
	if f.ListenAddress == "" {
		return DefaultListenAddress
	}
	return f.ListenAddress
}

// SyncPort points port at target. The old forward and rule are removed before
// the new ones are added so nothing keeps pointing at a stale address; a
// delete failure other than ErrNotFound aborts before anything is added.
func (f *Forwarder) SyncPort(ctx context.Context, port int, target string) (PortMapping, error) {
	if err := ValidatePort(port); err != nil {
		return PortMapping{}, &OperationError{Op: "validate", Port: port, Err: err}
	}
	if target == "" {
		return PortMapping{}, &OperationError{Op: "validate", Port: port, Err: errors.New("empty target address")}
	}

	listen := f.listenAddress()
	name := f.RuleName(port)
	log := logrus.WithFields(logrus.Fields{"port": port, "target": target})

	if err := f.NAT.DeleteForward(ctx, listen, port); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return PortMapping{}, &OperationError{Op: "delete forward", Port: port, Err: err}
		}
		log.Debug("No existing forward")
	}
	if err := f.NAT.AddForward(ctx, listen, port, target); err != nil {
		return PortMapping{}, &OperationError{Op: "add forward", Port: port, Err: err}
	}

	if err := f.Firewall.DeleteRule(ctx, name); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return PortMapping{}, &OperationError{Op: "delete firewall rule", Port: port, Err: err}
		}
		log.Debugf("No existing firewall rule %q", name)
	}
	if err := f.Firewall.AddRule(ctx, name, port); err != nil {
		return PortMapping{}, &OperationError{Op: "add firewall rule", Port: port, Err: err}
	}

	log.Infof("Forwarded %s:%d -> %s:%d", listen, port, target, port)
	return PortMapping{
		ListenAddress: listen,
		ListenPort:    port,
		Protocol:      ProtocolTCP,
		TargetAddress: target,
		TargetPort:    port,
		RuleName:      name,
	}, nil
}

// SyncAll syncs ports in order and stops at the first failure. Mappings for
// the ports synced before the failure are returned alongside the error.
func (f *Forwarder) SyncAll(ctx context.Context, ports []int, target string) ([]PortMapping, error) {
	for _, port := range ports {
		if err := ValidatePort(port); err != nil {
			return nil, &OperationError{Op: "validate", Port: port, Err: err}
		}
	}
	mappings := make([]PortMapping, 0, len(ports))
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return mappings, err
		}
		m, err := f.SyncPort(ctx, port, target)
		if err != nil {
			return mappings, err
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// ValidatePort rejects numbers outside the TCP port range 1-65535.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}
