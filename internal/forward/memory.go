package forward

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

// Memory is an in-process NATTable and Firewall. It backs --dry-run and tests.
type Memory struct {
	mu       sync.Mutex
	forwards map[string]string
	rules    map[string]int
	changes  int

	// FailDelete and FailAdd, when set, are returned by the matching calls.
	FailDelete error
	FailAdd    error
}

func NewMemory() *Memory {
	return &Memory{
		forwards: make(map[string]string),
		rules:    make(map[string]int),
	}
}

func listenKey(listenAddress string, port int) string {
	return net.JoinHostPort(listenAddress, strconv.Itoa(port))
}

func (m *Memory) DeleteForward(ctx context.Context, listenAddress string, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		return m.FailDelete
	}
	key := listenKey(listenAddress, port)
	if _, ok := m.forwards[key]; !ok {
		return ErrNotFound
	}
	delete(m.forwards, key)
	m.changes++
	logrus.Debugf("dry-run: deleted forward %s", key)
	return nil
}

func (m *Memory) AddForward(ctx context.Context, listenAddress string, port int, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAdd != nil {
		return m.FailAdd
	}
	key := listenKey(listenAddress, port)
	if existing, ok := m.forwards[key]; ok {
		return fmt.Errorf("forward %s already exists (-> %s)", key, existing)
	}
	m.forwards[key] = net.JoinHostPort(target, strconv.Itoa(port))
	m.changes++
	logrus.Debugf("dry-run: added forward %s -> %s", key, m.forwards[key])
	return nil
}

func (m *Memory) DeleteRule(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		return m.FailDelete
	}
	if _, ok := m.rules[name]; !ok {
		return ErrNotFound
	}
	delete(m.rules, name)
	m.changes++
	logrus.Debugf("dry-run: deleted firewall rule %q", name)
	return nil
}

func (m *Memory) AddRule(ctx context.Context, name string, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAdd != nil {
		return m.FailAdd
	}
	if _, ok := m.rules[name]; ok {
		return fmt.Errorf("firewall rule %q already exists", name)
	}
	m.rules[name] = port
	m.changes++
	logrus.Debugf("dry-run: added firewall rule %q for tcp/%d", name, port)
	return nil
}

// Forwards returns listen address:port -> target address:port.
func (m *Memory) Forwards() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.forwards))
	for k, v := range m.forwards {
		out[k] = v
	}
	return out
}

// Rules returns rule name -> local port.
func (m *Memory) Rules() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.rules))
	for k, v := range m.rules {
		out[k] = v
	}
	return out
}

// Changes counts successful adds and deletes.
func (m *Memory) Changes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changes
}
