package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/retention/internal/control"
	"github.com/vietddude/retention/internal/core/domain"
)

var runMigrate bool

var runCmd = &cobra.Command{
	Use:       "run <nlp|action|prediction>",
	Short:     "Run one agent until interrupted",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: agentNames(),
	Run:       runAgent,
}

func init() {
	runCmd.Flags().BoolVar(&runMigrate, "migrate", false, "apply database migrations before the first batch")
	rootCmd.AddCommand(runCmd)
}

func agentNames() []string {
	names := make([]string, 0, len(domain.Agents))
	for _, a := range domain.Agents {
		names = append(names, string(a))
	}
	return names
}

func runAgent(cmd *cobra.Command, args []string) {
	name, ok := domain.ParseAgentName(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown agent %q, expected one of %s\n", args[0], strings.Join(agentNames(), ", "))
		os.Exit(1)
	}

	cfg := loadConfig()

	app, err := control.NewApp(cfg, name, control.Options{Migrate: runMigrate})
	if err != nil {
		slog.Error("Failed to initialize agent", "agent", name, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		slog.Error("Agent stopped with error", "agent", name, "error", err)
		os.Exit(1)
	}
}
