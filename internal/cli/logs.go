package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/redeliver/internal/control"
	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/infra/storage"
)

var logsLimit int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the most recent admission log entries",
	Run:   runLogs,
}

func init() {
	logsCmd.Flags().IntVar(&logsLimit, "limit", storage.DefaultListLimit, "number of entries to show")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) {
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
	if stores.Backend != "postgres" {
		slog.Warn("Log trail is only persisted in PostgreSQL", "storage", stores.Backend)
	}

	entries, err := stores.Logs.Recent(ctx, logsLimit)
	if err != nil {
		slog.Error("Failed to list log entries", "error", err)
		os.Exit(1)
	}

	writeLogEntries(os.Stdout, entries)
}

func writeLogEntries(out io.Writer, entries []*domain.LogEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORDED AT\tFUNCTION\tOUTCOME\tEVENT ID\tAGE (ms)")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			domain.FormatTimestamp(e.RecordedAt), e.Function, e.Outcome, e.EventID, e.AgeMs)
	}
	_ = w.Flush()
}
