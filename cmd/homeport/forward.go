package main

import (
	"fmt"
	"io"

	"homeport/internal/config"
	"homeport/internal/database"
	"homeport/internal/forward"
	"homeport/internal/gate"
	"homeport/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func addForwarderFlags(fs *pflag.FlagSet) {
	fs.IntSlice("ports", []int{8123, 3000, 8086}, "ports to forward to the guest")
	fs.String("backend", forward.BackendNetsh, "forward backend (netsh, iptables, memory)")
	fs.Bool("dry-run", false, "use the in-memory backend and leave the host untouched")
	fs.String("listen-address", forward.DefaultListenAddress, "host address the forwards listen on")
	fs.String("rule-prefix", forward.DefaultRulePrefix, "firewall rule name prefix")
}

func newForwardCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Wait for the guest and its services, then forward the ports to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			d, closeJournal, err := buildDeployment(a)
			if err != nil {
				return err
			}
			defer closeJournal()

			res, err := d.Run(cmd.Context())
			if res != nil {
				printResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	}
	fs := cmd.Flags()
	addForwarderFlags(fs)
	fs.String("distro", "Ubuntu", "WSL distribution running the stack (empty runs commands on this host)")
	fs.String("wsl-command", "wsl", "command used to reach the distribution")
	fs.String("compose-command", "docker compose", "compose CLI inside the guest")
	fs.String("compose-dir", "/opt/homeassistant", "compose project directory inside the guest")
	fs.Bool("skip-compose-up", false, "only wait for services, do not run compose up")
	fs.Int("wait-seconds", 180, "timeout for each readiness phase")
	fs.Int("min-services", 3, "number of running services required")
	fs.String("address-probe", config.ProbeWSL, "how to find the guest address (wsl, interface)")
	fs.String("probe-interface", "eth0", "link to read addresses from with --address-probe=interface")
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Point the forwards at a known address without waiting for the guest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			d, closeJournal, err := buildDeployment(a)
			if err != nil {
				return err
			}
			defer closeJournal()

			res, err := d.Sync(cmd.Context(), target)
			printResult(cmd.OutOrStdout(), res)
			return err
		},
	}
	addForwarderFlags(cmd.Flags())
	cmd.Flags().StringVar(&target, "target", "", "guest address to forward to")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func printResult(w io.Writer, res *services.Result) {
	fmt.Fprintf(w, "Resolved address: %s\n", res.Address)
	for _, m := range res.Mappings {
		fmt.Fprintf(w, "Forwarded %s:%d -> %s:%d\n", m.ListenAddress, m.ListenPort, m.TargetAddress, m.TargetPort)
	}
}

func buildDeployment(a *app) (*services.Deployment, func(), error) {
	cfg := a.cfg
	guest, err := services.NewGuestCommand(cfg.WSLCommand, cfg.Distro)
	if err != nil {
		return nil, nil, err
	}

	var prober gate.AddressProber
	switch cfg.AddressProbe {
	case config.ProbeInterface:
		prober = &services.InterfaceProbe{Link: cfg.ProbeInterface}
	default:
		prober = &services.WSLProbe{Runner: a.runner, Guest: guest}
	}

	compose, err := services.NewComposeService(a.runner, guest, cfg.ComposeCommand, cfg.ComposeDir)
	if err != nil {
		return nil, nil, err
	}

	backend := cfg.Backend()
	nat, fw, err := forward.NewBackend(backend, a.runner)
	if err != nil {
		return nil, nil, err
	}
	forwarder := forward.New(nat, fw)
	forwarder.ListenAddress = cfg.ListenAddress
	forwarder.RulePrefix = cfg.RulePrefix

	d := &services.Deployment{
		Gate:        gate.New(prober, compose),
		Forwarder:   forwarder,
		Backend:     backend,
		Ports:       cfg.Ports,
		MinServices: cfg.MinServices,
		Wait:        cfg.Wait(),
	}
	if !cfg.SkipComposeUp {
		d.Compose = compose
	}

	closeJournal := func() {}
	if cfg.DatabasePath != "" && !cfg.DryRun {
		journal, err := database.InitDB(cfg.DatabasePath)
		if err != nil {
			logrus.Warnf("Journal disabled: %v", err)
		} else {
			d.Journal = journal
			closeJournal = func() { _ = journal.Close() }
		}
	}
	return d, closeJournal, nil
}
