package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"homeport/internal/config"
	"homeport/internal/gate"
	"homeport/internal/hostexec"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configFile string
	runner     hostexec.Runner
	cfg        *config.Config
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "homeport",
		Short:         "Expose a containerized home-automation stack running in a guest VM",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.configFile, cmd.Flags())
			if err != nil {
				return err
			}
			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			a.cfg = cfg
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default: ./.env if present)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("db", "homeport.db", "journal database path (empty disables the journal)")

	root.AddCommand(newForwardCmd(a), newSyncCmd(a), newServeCmd(a), newMeterCmd(a))
	return root
}

// exitCode is 2 for readiness timeouts and 1 for every other failure.
func exitCode(err error) int {
	var timeoutErr *gate.TimeoutError
	if errors.As(err, &timeoutErr) {
		return 2
	}
	return 1
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{runner: hostexec.ExecRunner{}}
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()
	if err != nil {
		logrus.Error(err)
		os.Exit(exitCode(err))
	}
}
