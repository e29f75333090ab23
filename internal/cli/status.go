package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/sentinel/internal/core/config"
	"github.com/vietddude/sentinel/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded recovery history per service",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	query := `
		SELECT service,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'successful'),
		       MAX(ended_at)::text
		FROM recovery_attempts
		GROUP BY service
		ORDER BY service`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("Failed to query recovery attempts", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SERVICE\tATTEMPTS\tSUCCESSFUL\tLAST ATTEMPT")

	for rows.Next() {
		var service, lastAttempt string
		var total, successful int64
		if err := rows.Scan(&service, &total, &successful, &lastAttempt); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", service, total, successful, lastAttempt)
	}
	_ = w.Flush()
}
