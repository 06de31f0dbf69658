package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
)

var exportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Export saved streets and status history to a spreadsheet",
	Long: `Writes one sheet listing the saved streets and one sheet per street
with its recorded status history.

Example:
  neige export deneigement.xlsx --history 50`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().Int("history", 100, "maximum history rows per street")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	historyLimit, _ := cmd.Flags().GetInt("history")
	path := args[0]

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
		return eris.New("no saved streets to export")
	}

	f := xlsx.NewFile()

	overview, err := f.AddSheet("Streets")
	if err != nil {
		return eris.Wrap(err, "add sheet")
	}
	header := overview.AddRow()
	for _, h := range []string{"Street ID", "Name", "Saved"} {
		header.AddCell().SetString(h)
	}
	for _, street := range streets {
		row := overview.AddRow()
		row.AddCell().SetInt(street.StreetID)
		row.AddCell().SetString(street.DisplayName)
		row.AddCell().SetString(street.CreatedAt.Format(time.RFC3339))
	}

	for _, street := range streets {
		history, err := env.Store.ListStatusHistory(ctx, street.StreetID, historyLimit)
		if err != nil {
			return eris.Wrapf(err, "history for street %d", street.StreetID)
		}

		sheet, err := f.AddSheet(sheetName(street.StreetID))
		if err != nil {
			return eris.Wrap(err, "add sheet")
		}
		hdr := sheet.AddRow()
		for _, h := range []string{"State", "Code", "Planned Start", "Planned End", "Replanned Start", "Replanned End", "Updated"} {
			hdr.AddCell().SetString(h)
		}
		for _, st := range history {
			row := sheet.AddRow()
			row.AddCell().SetString(st.State)
			row.AddCell().SetInt(int(st.Code))
			row.AddCell().SetString(timeCell(st.PlannedStart))
			row.AddCell().SetString(timeCell(st.PlannedEnd))
			row.AddCell().SetString(timeCell(st.ReplannedStart))
			row.AddCell().SetString(timeCell(st.ReplannedEnd))
			row.AddCell().SetString(timeCell(st.LastUpdated))
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	fmt.Printf("Exported %d streets to %s\n", len(streets), path)
	return nil
}

// sheetName keeps sheet titles inside the 31-character xlsx limit.
func sheetName(streetID int) string {
	return fmt.Sprintf("Street %d", streetID)
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
