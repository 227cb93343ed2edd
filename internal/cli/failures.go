package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/redeliver/internal/control"
	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/infra/storage"
)

var failuresLimit int

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Show the most recent failure reports",
	Run:   runFailures,
}

func init() {
	failuresCmd.Flags().IntVar(&failuresLimit, "limit", storage.DefaultListLimit, "number of reports to show")
	rootCmd.AddCommand(failuresCmd)
}

func runFailures(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)

	ctx := context.Background()
	stores, err := control.OpenStores(ctx, *cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = stores.Close()
	}()

	total, err := stores.Failures.Count(ctx)
	if err != nil {
		slog.Error("Failed to count failure reports", "error", err)
		os.Exit(1)
	}
	reports, err := stores.Failures.Recent(ctx, failuresLimit)
	if err != nil {
		slog.Error("Failed to list failure reports", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPORTED AT\tFUNCTION\tEVENT ID\tRETRY\tATTEMPT\tERROR")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%s\n",
			domain.FormatTimestamp(r.ReportedAt),
			r.Failure.Function,
			r.Failure.EventID,
			r.Failure.Retry,
			r.Failure.Attempt,
			r.Failure.Message,
		)
	}
	_ = w.Flush()
	fmt.Printf("\n%d of %d reports (%s)\n", len(reports), total, stores.Backend)
}
