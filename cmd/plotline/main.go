// Command plotline manages a writer's knowledge graph: it picks up
// draft notes, extracts entities and relationships into Neo4j, and
// answers natural-language questions about the story.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mwestrom/plotline"
)

var (
	verbose bool
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "plotline",
	Short: "Turn narrative notes into a queryable knowledge graph",
	Long: `plotline ingests your draft notes, mines them for characters,
locations, scenes, themes, and @category:value tags, and resolves them
into a Neo4j knowledge graph you can question in plain English.

Drop files in the drafts directory, run "plotline process", then ask:

  plotline ask "Who knows about Alice's debugging skill?"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

// withEngine loads configuration, builds an engine, and tears it down
// after fn returns. Every subcommand that touches the backends runs
// through here.
func withEngine(fn func(ctx context.Context, eng *plotline.Engine) error) error {
	cfg, err := plotline.LoadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	eng, err := plotline.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := eng.Close(ctx); cerr != nil {
			slog.Warn("plotline: close", "error", cerr)
		}
	}()

	return fn(ctx, eng)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "overall command timeout (0 = none)")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(draftsCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
