package forward

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	"homeport/internal/hostexec"
)

// Netsh drives Windows portproxy and advfirewall through netsh.exe. netsh's
// error text is localized, so entries are looked up before they are deleted.
type Netsh struct {
	Runner  hostexec.Runner
	Command string
}

func NewNetsh(runner hostexec.Runner) *Netsh {
	return &Netsh{Runner: runner, Command: "netsh"}
}

func (n *Netsh) run(ctx context.Context, args ...string) (string, error) {
	return n.Runner.Run(ctx, n.Command, args...)
}

// hasProxy reports whether `portproxy show <kind>` lists listenAddress:port.
// Data rows are "<listen address> <port> <connect address> <port>"; the
// localized headers never start with an address and a port number.
func (n *Netsh) hasProxy(ctx context.Context, kind, listenAddress string, port int) (bool, error) {
	out, err := n.run(ctx, "interface", "portproxy", "show", kind)
	if err != nil {
		return false, err
	}
	p := strconv.Itoa(port)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 4 && fields[1] == p && strings.EqualFold(fields[0], listenAddress) {
			return true, nil
		}
	}
	return false, nil
}

// DeleteForward removes both v4tov4 and v4tov6 proxies on the listen
// address, so a forward to either address family is cleared.
func (n *Netsh) DeleteForward(ctx context.Context, listenAddress string, port int) error {
	deleted := false
	for _, kind := range []string{"v4tov4", "v4tov6"} {
		ok, err := n.hasProxy(ctx, kind, listenAddress, port)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := n.run(ctx, "interface", "portproxy", "delete", kind,
			"listenport="+strconv.Itoa(port), "listenaddress="+listenAddress); err != nil {
			return err
		}
		deleted = true
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (n *Netsh) AddForward(ctx context.Context, listenAddress string, port int, target string) error {
	kind := "v4tov4"
	if ip := net.ParseIP(target); ip != nil && ip.To4() == nil {
		kind = "v4tov6"
	}
	p := strconv.Itoa(port)
	_, err := n.run(ctx, "interface", "portproxy", "add", kind,
		"listenport="+p, "listenaddress="+listenAddress,
		"connectport="+p, "connectaddress="+target)
	return err
}

// DeleteRule removes every firewall rule called name. `show rule` exits
// non-zero when no rule has that name.
func (n *Netsh) DeleteRule(ctx context.Context, name string) error {
	if _, err := n.run(ctx, "advfirewall", "firewall", "show", "rule", "name="+name); err != nil {
		var exitErr *hostexec.ExitError
		if errors.As(err, &exitErr) {
			return ErrNotFound
		}
		return err
	}
	_, err := n.run(ctx, "advfirewall", "firewall", "delete", "rule", "name="+name)
	return err
}

func (n *Netsh) AddRule(ctx context.Context, name string, port int) error {
	_, err := n.run(ctx, "advfirewall", "firewall", "add", "rule", "name="+name,
		"dir=in", "action=allow", "protocol=TCP", "localport="+strconv.Itoa(port))
	return err
}
