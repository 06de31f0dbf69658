package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/boreal-data/neige-cli/internal/model"
	"github.com/boreal-data/neige-cli/pkg/planif"
)

var statusCmd = &cobra.Command{
	Use:   "status [street-id]",
	Short: "Show snow-removal status",
	Long: `Queries the Planif-Neige feed for the current snow-removal status.
Without arguments, reports every saved street. With a street id, reports
that street only.

Examples:
  neige status
  neige status 10200162
  neige status 10200162 --history 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Int("history", 0, "also print the last N recorded statuses")
	statusCmd.Flags().Bool("metadata", false, "print feed metadata first")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	history, _ := cmd.Flags().GetInt("history")
	showMeta, _ := cmd.Flags().GetBool("metadata")

	env, err := initEnv(ctx, false)
	if err != nil {
		return err
	}
	defer env.Close()

	if showMeta {
		md, err := env.Planif.Metadata(ctx)
		if err != nil {
			fmt.Println("Feed metadata unavailable")
		} else {
			fmt.Printf("Feed: %s, %d records", md.Status, md.RecordCount)
			if md.LastUpdate != nil {
				fmt.Printf(", updated %s", md.LastUpdate.Format(time.RFC3339))
			}
			fmt.Println()
		}
	}

	if len(args) == 1 {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return eris.Errorf("street-id must be an integer (got %q)", args[0])
		}
		return printStreetStatus(cmd, env, id, history)
	}

	streets, err := env.Store.ListStreets(ctx)
	if err != nil {
		return eris.Wrap(err, "list saved streets")
	}
	if len(streets) == 0 {
		fmt.Println("No saved streets. Use `neige search <name> --save` first.")
		return nil
	}

	statuses, err := env.Planif.Statuses(ctx)
	if err != nil {
		if eris.Is(err, planif.ErrUpstreamUnavailable) {
			fmt.Println("Feed unavailable; showing last recorded statuses")
			for _, street := range streets {
				last, err := env.Store.LatestStatus(ctx, street.StreetID)
				if err != nil || last == nil {
					fmt.Printf("%-40s  unknown\n", street.DisplayName)
					continue
				}
				printStatusLine(street.DisplayName, *last)
			}
			return nil
		}
		return err
	}

	byStreet := make(map[int]model.SnowStatus, len(statuses))
	for _, st := range statuses {
		byStreet[st.StreetID] = st
	}
	for _, street := range streets {
		st, ok := byStreet[street.StreetID]
		if !ok {
			fmt.Printf("%-40s  not in feed\n", street.DisplayName)
			continue
		}
		printStatusLine(street.DisplayName, st)
	}
	return nil
}

func printStreetStatus(cmd *cobra.Command, env *appEnv, id, history int) error {
	ctx := cmd.Context()

	st, err := env.Planif.StreetStatus(ctx, id)
	if err != nil {
		return err
	}
	if st == nil {
		fmt.Printf("Street %d is not in the feed\n", id)
	} else {
		label := fmt.Sprintf("street %d", id)
		if seg, err := env.Resolver.ByID(ctx, id); err == nil && seg != nil {
			label = seg.DisplayName()
		}
		printStatusLine(label, *st)
	}

	if history > 0 {
		recorded, err := env.Store.ListStatusHistory(ctx, id, history)
		if err != nil {
			return eris.Wrap(err, "status history")
		}
		if len(recorded) > 0 {
			fmt.Println("\nRecorded history:")
			for _, h := range recorded {
				when := ""
				if h.LastUpdated != nil {
					when = h.LastUpdated.Format(time.RFC3339)
				}
				fmt.Printf("  %-12s  code %-3d  %s\n", h.State, int(h.Code), when)
			}
		}
	}
	return nil
}

func printStatusLine(label string, st model.SnowStatus) {
	line := fmt.Sprintf("%-40s  %-12s", label, st.State)
	switch {
	case st.ReplannedStart != nil:
		line += fmt.Sprintf("  replanned %s", windowString(st.ReplannedStart, st.ReplannedEnd))
	case st.PlannedStart != nil:
		line += fmt.Sprintf("  planned %s", windowString(st.PlannedStart, st.PlannedEnd))
	}
	if st.ParkingRestricted() {
		line += "  [no parking]"
	}
	fmt.Println(line)
}

func windowString(start, end *time.Time) string {
	const layout = "Jan 2 15:04"
	s := start.Format(layout)
	if end == nil {
		return s
	}
	return s + " to " + end.Format(layout)
}
