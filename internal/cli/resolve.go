package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/sentinel/internal/core/config"
	"github.com/vietddude/sentinel/internal/infra/storage/postgres"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [event_id]",
	Short: "Mark a recorded failure event as resolved",
	Args:  cobra.ExactArgs(1),
	Run:   runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) {
	eventID := args[0]

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	// Direct SQL keeps the manual override independent of the running engine.
	query := "UPDATE failure_events SET resolved = TRUE WHERE id = $1"
	res, err := db.ExecContext(ctx, query, eventID)
	if err != nil {
		slog.Error("Failed to resolve event", "error", err)
		os.Exit(1)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		fmt.Printf("No failure event found with id %s\n", eventID)
		os.Exit(1)
	}
	fmt.Printf("Marked failure event %s as resolved\n", eventID)
}
