package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a geobase download",
	Long: `Downloads the street geobase regardless of cache freshness and
replaces the cached snapshot. With --shapefile, loads a local geobase
shapefile export instead of downloading.`,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().String("shapefile", "", "load a local .shp export instead of downloading")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx, false)
	if err != nil {
		return err
	}
	defer env.Close()

	shapefile, _ := cmd.Flags().GetString("shapefile")
	if shapefile != "" {
		snap, err := env.Geobase.LoadShapefile(shapefile)
		if err != nil {
			return eris.Wrapf(err, "load shapefile %s", shapefile)
		}
		fmt.Printf("Loaded %d street segments from %s\n", len(snap.Segments), shapefile)
		return nil
	}

	zap.L().Info("refreshing geobase", zap.String("url", cfg.Geobase.URL))
	snap, err := env.Geobase.Refresh(ctx)
	if err != nil {
		return eris.Wrap(err, "refresh geobase")
	}

	fmt.Printf("Refreshed: %d street segments (fetched %s)\n",
		len(snap.Segments), snap.FetchedAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}
