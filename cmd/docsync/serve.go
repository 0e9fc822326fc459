package main

import (
	"context"
	stderr "errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memorykeep/docsync/pkg/api"
	"github.com/memorykeep/docsync/pkg/status"
)

var (
	serveAddress   string
	shutdownWindow time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve documents, health and metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddress != "" {
			cfg.API.Address = serveAddress
		}

		rt, err := newRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		go rt.health.StartHealthChecks(ctx, rt.checkComponent)
		go logChanges(ctx, rt)

		serverCfg := api.DefaultServerConfig()
		serverCfg.Address = cfg.API.Address
		serverCfg.EnableMetrics = cfg.Monitoring.Metrics.Enabled
		serverCfg.MetricsPath = cfg.Monitoring.Metrics.Path

		server := api.NewServer(serverCfg, api.Services{
			Hub:     rt.hub,
			Status:  status.NewTracker(status.TrackerConfig{HealthTracker: rt.health}),
			Health:  rt.health,
			Metrics: rt.collector,
			Logger:  rt.logger,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			if !stderr.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

// logChanges logs every document change the engines publish.
func logChanges(ctx context.Context, rt *runtime) {
	sub := rt.hub.Bus().Subscribe(nil)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			rt.logger.Info("document changed",
				"kind", e.Kind,
				"owner", e.OwnerID,
				"partition", e.PartitionID,
				"source", e.Source)
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddress, "address", "", "Listen address, overrides the configuration")
	serveCmd.Flags().DurationVar(&shutdownWindow, "shutdown-timeout", 10*time.Second, "How long to wait for in-flight requests on shutdown")
}
