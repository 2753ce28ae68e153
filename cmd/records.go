package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List stored attendance records",
	RunE:  runRecords,
}

func init() {
	rootCmd.AddCommand(recordsCmd)

	recordsCmd.Flags().String("date", "", "Only records of this date")
	recordsCmd.Flags().String("subject", "", "Only records of this subject")
	recordsCmd.Flags().Int("limit", database.DefaultRecordLimit, "Maximum number of records")
	recordsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runRecords(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	hasStore, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	if !hasStore {
		return errors.New("DATABASE_URL or MARIADB_DSN is required")
	}
	defer closeStorage()

	store, err := database.GetRecordStore(ctx)
	if err != nil {
		return err
	}

	records, err := store.ListRecords(ctx, database.RecordFilter{
		Date:    mustGetString(cmd, "date"),
		Subject: mustGetString(cmd, "subject"),
		Limit:   mustGetInt(cmd, "limit"),
	})
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No attendance records found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tPERIOD\tSUBJECT\tFIRST\tSECOND\tVERIFIED")
	fmt.Fprintln(w, "----\t------\t-------\t-----\t------\t--------")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			rec.Date, rec.Period, rec.Subject,
			len(rec.FirstWindow), len(rec.SecondWindow), strings.Join(rec.Verified, ", "))
	}
	return w.Flush()
}
