package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/retention/internal/core/domain"
	redisclient "github.com/vietddude/retention/internal/infra/redis"
	"github.com/vietddude/retention/internal/infra/storage/postgres"
)

var (
	statusLimit int
	statusLive  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show open work per agent and the latest audit events",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of audit events to show")
	statusCmd.Flags().BoolVar(&statusLive, "live", false, "read audit events from the Redis stream instead of audit_log")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	open, err := db.OpenWork(ctx)
	if err != nil {
		slog.Error("Failed to count open work", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "AGENT\tOPEN ITEMS")
	for _, a := range domain.Agents {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", a, open[a])
	}
	_ = w.Flush()
	fmt.Println()

	if statusLive {
		if !cfg.Redis.Enabled() {
			slog.Error("--live needs redis.url or REDIS_URL")
			os.Exit(1)
		}
		printStream(ctx, cfg.Redis)
		return
	}

	events, err := db.RecentAuditEvents(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to list audit events", "error", err)
		os.Exit(1)
	}
	printEvents(events)
}

func printEvents(events []domain.AuditEvent) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TIME\tAGENT\tEVENT\tSTATUS\tCUSTOMER\tDETAILS")
	for _, ev := range events {
		customer := "-"
		if ev.CustomerID != nil {
			customer = fmt.Sprint(*ev.CustomerID)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.CreatedAt.Format(time.DateTime), ev.AgentName, ev.EventType, ev.Status, customer, ev.Details)
	}
	_ = w.Flush()
}

func printStream(ctx context.Context, cfg redisclient.Config) {
	client, err := redisclient.NewClient(cfg)
	if err != nil {
		slog.Error("Redis unavailable", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	events, err := client.RecentAudit(ctx, int64(statusLimit))
	if err != nil {
		slog.Error("Failed to read audit stream", "error", err)
		os.Exit(1)
	}
	printEvents(events)

	if n, err := client.StreamLength(ctx); err == nil {
		fmt.Printf("\nLive audit stream holds %d events\n", n)
	}
}
