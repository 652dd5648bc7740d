package main

import (
	"errors"
	"fmt"

	"homeport/internal/database"
	"homeport/internal/meter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newMeterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meter",
		Short: "Read the Tibber Data API (token from HOMEPORT_TIBBER_TOKEN)",
	}
	pf := cmd.PersistentFlags()
	pf.String("tibber-api", meter.DefaultBaseURL, "Tibber Data API base URL")
	pf.String("home", "", "home id")

	client := func() (*meter.Client, error) {
		if a.cfg.TibberToken == "" {
			return nil, errors.New("no Tibber token: set HOMEPORT_TIBBER_TOKEN")
		}
		return meter.NewClient(a.cfg.TibberAPI, a.cfg.TibberToken), nil
	}

	homes := &cobra.Command{
		Use:   "homes",
		Short: "List homes visible to the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			list, err := c.Homes(cmd.Context())
			if err != nil {
				return err
			}
			for _, h := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", h.ID, h.Name())
			}
			return nil
		},
	}

	devices := &cobra.Command{
		Use:   "devices",
		Short: "List devices of a home",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.TibberHomeID == "" {
				return errors.New("--home is required")
			}
			c, err := client()
			if err != nil {
				return err
			}
			list, err := c.Devices(cmd.Context(), a.cfg.TibberHomeID)
			if err != nil {
				return err
			}
			for _, d := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d.ID, d.Label())
			}
			return nil
		},
	}

	poll := &cobra.Command{
		Use:   "poll",
		Short: "Poll a device and store its readings in the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cfg.TibberHomeID == "" || cfg.TibberDeviceID == "" {
				return errors.New("--home and --device are required")
			}
			if cfg.DatabasePath == "" {
				return errors.New("poll needs a journal database (--db)")
			}
			c, err := client()
			if err != nil {
				return err
			}
			journal, err := database.InitDB(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer journal.Close()

			logrus.Infof("Polling device %s every %s", cfg.TibberDeviceID, cfg.MeterInterval)
			return meter.NewPoller(c, journal, cfg.TibberHomeID, cfg.TibberDeviceID, cfg.MeterInterval).Run(cmd.Context())
		},
	}
	poll.Flags().String("device", "", "device id")
	poll.Flags().Duration("interval", meter.DefaultInterval, "poll interval")

	cmd.AddCommand(homes, devices, poll)
	return cmd
}
