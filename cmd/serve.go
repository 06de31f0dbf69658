package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boreal-data/neige-cli/internal/api"
	"github.com/boreal-data/neige-cli/pkg/planif"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the status poller",
	Long: `Starts the HTTP API (street search, saved streets, snow status,
Prometheus metrics) and a background poller that records Planif-Neige
status changes for the saved streets.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().Bool("no-poll", false, "serve without the background status poller")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	noPoll, _ := cmd.Flags().GetBool("no-poll")

	env, err := initEnv(ctx, true)
	if err != nil {
		return err
	}
	defer env.Close()

	// Warm the snapshot so the first search does not pay the download.
	if _, err := env.Geobase.Snapshot(ctx); err != nil {
		zap.L().Warn("geobase not available at startup, will retry on demand", zap.Error(err))
	}

	var poller *planif.Poller
	var statuses api.StatusSource
	if !noPoll {
		poller = planif.NewPoller(planif.PollerOptions{
			Client:   env.Planif,
			Store:    env.Store,
			Interval: cfg.Planif.PollInterval(),
			Metrics:  env.Metrics,
		})
		statuses = poller
	}

	handler := api.NewServer(env.Geobase, env.Resolver, env.Store, statuses, env.Metrics)

	port := servePort
	if port == 0 {
		port = cfg.Server.Port
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if poller != nil {
		g.Go(func() error {
			err := poller.Run(ctx)
			if eris.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
