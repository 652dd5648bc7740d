package forward

import (
	"fmt"

	"homeport/internal/hostexec"
)

const (
	BackendNetsh    = "netsh"
	BackendIPTables = "iptables"
	BackendMemory   = "memory"
)

// Backends lists the accepted backend names.
var Backends = []string{BackendNetsh, BackendIPTables, BackendMemory}

// NewBackend returns the NATTable and Firewall for kind. The same value
// implements both for every backend.
func NewBackend(kind string, runner hostexec.Runner) (NATTable, Firewall, error) {
	switch kind {
	case BackendNetsh:
		n := NewNetsh(runner)
		return n, n, nil
	case BackendIPTables:
		t, err := newIPTables()
		if err != nil {
			return nil, nil, fmt.Errorf("initializing iptables: %w", err)
		}
		return t, t, nil
	case BackendMemory:
		m := NewMemory()
		return m, m, nil
	default:
		return nil, nil, fmt.Errorf("unknown forward backend %q (want one of %v)", kind, Backends)
	}
}
