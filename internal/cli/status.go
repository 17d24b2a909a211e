package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sportsight/scout/internal/control"
	"github.com/sportsight/scout/internal/core/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored progress for every job",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	initLogger(slog.LevelWarn)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, closeStore, err := control.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open checkpoint store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	cps, err := store.List(ctx)
	if err != nil {
		slog.Error("Failed to list checkpoints", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "JOB\tTYPE\tVALUE\tPROGRESS\tUPDATED")

	for _, cp := range cps {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\n",
			cp.JobName, cp.Type, cp.Value, cp.Progress(),
			cp.UpdatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
