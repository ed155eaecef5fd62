package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/batcher/internal/control"
)

var batchesLimit int

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List recently committed batches",
	Run:   runBatches,
}

func init() {
	batchesCmd.Flags().IntVar(&batchesLimit, "limit", 20, "number of batches to show")
	rootCmd.AddCommand(batchesCmd)
}

func runBatches(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	stores, err := control.OpenStores(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	batches, err := stores.Repo.ListRecent(ctx, batchesLimit)
	if err != nil {
		slog.Error("Failed to list batches", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ROOT\tITEMS\tBYTES\tCREATED")
	for _, b := range batches {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", b.Root.Hex(), b.ItemCount, b.SizeBytes, b.CreatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
