//go:build linux

package forward

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/coreos/go-iptables/iptables"
	"github.com/mattn/go-shellwords"
	"github.com/sirupsen/logrus"
)

const (
	natChain    = "HOMEPORT-DNAT"
	filterChain = "HOMEPORT-ALLOW"
)

// ruleTable is the part of go-iptables the backend drives.
type ruleTable interface {
	List(table, chain string) ([]string, error)
	Exists(table, chain string, rulespec ...string) (bool, error)
	Insert(table, chain string, pos int, rulespec ...string) error
	Append(table, chain string, rulespec ...string) error
	Delete(table, chain string, rulespec ...string) error
	ChainExists(table, chain string) (bool, error)
	NewChain(table, chain string) error
}

// IPTables forwards with DNAT rules and allows the forwarded traffic through
// FORWARD. Every rule lives in a dedicated chain and carries its identity in
// an iptables comment, so unrelated rules are never touched.
type IPTables struct {
	ipt ruleTable

	once      sync.Once
	ensureErr error
}

func newIPTables() (*IPTables, error) {
	ipt, err := iptables.New()
	if err != nil {
		return nil, err
	}
	return &IPTables{ipt: ipt}, nil
}

type chainJump struct {
	table, parent string
	rulespec      []string
}

// Only traffic addressed to the host itself enters the DNAT chain, so
// connections to the same port on other machines pass untouched. Loopback
// is left alone in OUTPUT since DNAT from 127.0.0.0/8 is not routable.
var jumps = []chainJump{
	{"nat", "PREROUTING", []string{"-m", "addrtype", "--dst-type", "LOCAL", "-j", natChain}},
	{"nat", "OUTPUT", []string{"!", "-d", "127.0.0.0/8", "-m", "addrtype", "--dst-type", "LOCAL", "-j", natChain}},
	{"filter", "FORWARD", []string{"-j", filterChain}},
}

func (t *IPTables) ensureChains() error {
	t.once.Do(func() {
		for _, c := range []struct{ table, chain string }{{"nat", natChain}, {"filter", filterChain}} {
			exists, err := t.ipt.ChainExists(c.table, c.chain)
			if err != nil {
				t.ensureErr = fmt.Errorf("checking chain %s/%s: %w", c.table, c.chain, err)
				return
			}
			if exists {
				continue
			}
			if err := t.ipt.NewChain(c.table, c.chain); err != nil {
				t.ensureErr = fmt.Errorf("creating chain %s/%s: %w", c.table, c.chain, err)
				return
			}
			logrus.Infof("Created iptables chain %s/%s", c.table, c.chain)
		}
		for _, j := range jumps {
			if err := t.ensureJump(j); err != nil {
				t.ensureErr = fmt.Errorf("jumping %s/%s: %w", j.table, j.parent, err)
				return
			}
		}
	})
	return t.ensureErr
}

func (t *IPTables) ensureJump(j chainJump) error {
	target := j.rulespec[len(j.rulespec)-1]
	if len(j.rulespec) > 2 {
		// A bare jump would send traffic for other hosts through the chain.
		bare, err := t.ipt.Exists(j.table, j.parent, "-j", target)
		if err != nil {
			return err
		}
		if bare {
			logrus.Infof("Removing unconditional jump %s/%s -> %s", j.table, j.parent, target)
			if err := t.ipt.Delete(j.table, j.parent, "-j", target); err != nil {
				return err
			}
		}
	}
	ok, err := t.ipt.Exists(j.table, j.parent, j.rulespec...)
	if err != nil || ok {
		return err
	}
	return t.ipt.Insert(j.table, j.parent, 1, j.rulespec...)
}

func forwardComment(listenAddress string, port int) string {
	return "homeport " + net.JoinHostPort(listenAddress, strconv.Itoa(port))
}

// deleteByComment removes every rule in chain tagged with comment.
func (t *IPTables) deleteByComment(table, chain, comment string) error {
	if err := t.ensureChains(); err != nil {
		return err
	}
	rules, err := t.ipt.List(table, chain)
	if err != nil {
		return err
	}
	deleted := 0
	for _, rule := range rules {
		args, err := shellwords.Parse(rule)
		if err != nil {
			return fmt.Errorf("parsing rule %q: %w", rule, err)
		}
		// "-A CHAIN <rulespec>"; "-N CHAIN" lines are skipped.
		if len(args) < 3 || args[0] != "-A" || !hasComment(args, comment) {
			continue
		}
		if err := t.ipt.Delete(table, chain, args[2:]...); err != nil {
			return err
		}
		deleted++
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func hasComment(args []string, comment string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "--comment" && args[i+1] == comment {
			return true
		}
	}
	return false
}

func (t *IPTables) DeleteForward(ctx context.Context, listenAddress string, port int) error {
	return t.deleteByComment("nat", natChain, forwardComment(listenAddress, port))
}

func (t *IPTables) AddForward(ctx context.Context, listenAddress string, port int, target string) error {
	ip := net.ParseIP(target)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("iptables backend needs an IPv4 target, got %q", target)
	}
	if err := t.ensureChains(); err != nil {
		return err
	}
	p := strconv.Itoa(port)
	spec := []string{"-p", "tcp"}
	if listenAddress != DefaultListenAddress {
		spec = append(spec, "-d", listenAddress)
	}
	spec = append(spec, "--dport", p,
		"-m", "comment", "--comment", forwardComment(listenAddress, port),
		"-j", "DNAT", "--to-destination", net.JoinHostPort(target, p))
	return t.ipt.Append("nat", natChain, spec...)
}

func (t *IPTables) DeleteRule(ctx context.Context, name string) error {
	return t.deleteByComment("filter", filterChain, name)
}

func (t *IPTables) AddRule(ctx context.Context, name string, port int) error {
	if err := t.ensureChains(); err != nil {
		return err
	}
	// Only connections DNATed by the forward chain are let through.
	return t.ipt.Append("filter", filterChain,
		"-p", "tcp", "--dport", strconv.Itoa(port),
		"-m", "conntrack", "--ctstate", "DNAT",
		"-m", "comment", "--comment", name, "-j", "ACCEPT")
}
