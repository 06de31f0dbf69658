package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var streetsCmd = &cobra.Command{
	Use:   "streets",
	Short: "Manage saved streets",
}

var streetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved streets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		streets, err := env.Store.ListStreets(ctx)
		if err != nil {
			return eris.Wrap(err, "list streets")
		}
		if len(streets) == 0 {
			fmt.Println("No saved streets")
			return nil
		}
		fmt.Printf("%-10s  %-40s  %s\n", "ID", "STREET", "SAVED")
		for _, s := range streets {
			fmt.Printf("%-10d  %-40s  %s\n", s.StreetID, s.DisplayName, s.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var streetsRemoveCmd = &cobra.Command{
	Use:   "remove <street-id>",
	Short: "Stop tracking a street",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		id, err := strconv.Atoi(args[0])
		if err != nil {
			return eris.Errorf("street-id must be an integer (got %q)", args[0])
		}

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.RemoveStreet(ctx, id); err != nil {
			return eris.Wrap(err, "remove street")
		}
		fmt.Printf("Removed street %d\n", id)
		return nil
	},
}

func init() {
	streetsCmd.AddCommand(streetsListCmd)
	streetsCmd.AddCommand(streetsRemoveCmd)
	rootCmd.AddCommand(streetsCmd)
}
