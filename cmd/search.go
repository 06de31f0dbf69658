package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boreal-data/neige-cli/internal/geobase"
	"github.com/rotisserie/eris"
)

var searchCmd = &cobra.Command{
	Use:   "search <street name>",
	Short: "Resolve a street name to geobase segments",
	Long: `Searches the cached Montreal geobase for street segments matching the
given name. Matching ignores accents and expands common abbreviations
(st- for saint-, boul. for boulevard, and so on).

Examples:
  # All sides and ranges of a street
  neige search acadie

  # Narrow to the segment containing a civic number
  neige search "st-denis" --civic 4210

  # Resolve and start tracking the best match
  neige search acadie --civic 1100 --save`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Int("civic", 0, "civic number to narrow the match")
	searchCmd.Flags().Bool("save", false, "save the best match for status tracking")
	searchCmd.Flags().Int("limit", 10, "maximum results to print")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	civic, _ := cmd.Flags().GetInt("civic")
	save, _ := cmd.Flags().GetBool("save")
	limit, _ := cmd.Flags().GetInt("limit")
	name := strings.Join(args, " ")

	env, err := initEnv(ctx, false)
	if err != nil {
		return err
	}
	defer env.Close()

	matches, err := env.Resolver.Search(ctx, name, civic)
	if err != nil {
		if eris.Is(err, geobase.ErrDataUnavailable) {
			return eris.Wrap(err, "street dataset unavailable; try again or run `neige refresh`")
		}
		return err
	}
	if len(matches) == 0 {
		fmt.Printf("No match for %q", name)
		if civic > 0 {
			fmt.Printf(" at civic %d", civic)
		}
		fmt.Println()
		return nil
	}

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	fmt.Printf("%-10s  %-40s  %-6s  %-12s  %s\n", "ID", "STREET", "SIDE", "ADDRESSES", "BOROUGH")
	for _, m := range matches {
		seg := m.Segment
		fmt.Printf("%-10d  %-40s  %-6s  %-12s  %s\n",
			seg.ID, seg.Name, seg.Side, seg.AddressRange(), seg.Borough)
	}

	if save {
		best := matches[0].Segment
		saved, err := env.Store.SaveStreet(ctx, best.ID, best.DisplayName())
		if err != nil {
			return eris.Wrap(err, "save street")
		}
		zap.L().Info("street saved for tracking",
			zap.Int("street_id", saved.StreetID),
			zap.String("display_name", saved.DisplayName),
		)
		fmt.Printf("\nSaved %s (id %d) for status tracking\n", saved.DisplayName, saved.StreetID)
	}

	return nil
}
