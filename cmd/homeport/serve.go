package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"homeport/internal/database"
	"homeport/internal/handlers"
	"homeport/internal/web"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the forward journal and meter readings over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.DatabasePath == "" {
				return errors.New("serve needs a journal database (--db)")
			}
			journal, err := database.InitDB(a.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer journal.Close()

			renderer, err := web.NewRenderer()
			if err != nil {
				return err
			}

			e := echo.New()
			e.HideBanner = true
			e.Renderer = renderer
			e.Use(middleware.Logger())
			e.Use(middleware.Recover())
			handlers.RegisterRoutes(e, e.Group("/api"), journal)

			ctx := cmd.Context()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = e.Shutdown(shutdownCtx)
			}()

			logrus.Infof("homeport API starting on %s...", a.cfg.HTTPAddr)
			if err := e.Start(a.cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("http-addr", ":8080", "listen address")
	return cmd
}
