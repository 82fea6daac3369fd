package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"provenance-go/internal/api"
	"provenance-go/internal/app"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run scheduled snapshot verification",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := a.Config()
		addr := cfg.Server.Addr
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			addr = v
		}

		sched, err := app.NewScheduler(cfg.Server.VerifySchedule, a.Snapshots(), a.Logger())
		if err != nil {
			return err
		}
		if sched != nil {
			sched.Start()
		}

		gin.SetMode(gin.ReleaseMode)
		router := api.NewRouter(api.Services{
			Assertions: a.Assertions(),
			Queue:      a.Queue(),
			Snapshots:  a.Snapshots(),
			Graphs:     a.Graphs(),
			Packs:      a.Packs(),
		}, a.Logger())

		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.Logger().Info("server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("serving: %w", err)
			}
		case <-cmd.Context().Done():
		}

		a.Logger().Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if sched != nil {
			sched.Stop(ctx)
		}
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
