package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sportsight/scout/internal/control"
	"github.com/sportsight/scout/internal/core/config"
)

var resetCmd = &cobra.Command{
	Use:   "reset [job_name]",
	Short: "Delete a job's checkpoint so its next run starts from scratch",
	Args:  cobra.ExactArgs(1),
	Run:   runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) {
	initLogger(slog.LevelWarn)
	jobName := args[0]

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

	if err := store.Delete(ctx, jobName); err != nil {
		slog.Error("Failed to reset checkpoint", "job", jobName, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Checkpoint reset for %s\n", jobName)
}
