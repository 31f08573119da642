package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/convostore/internal/config"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/convostore/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"  ___ ___  _ ____   _____  ___| |_ ___  _ __ ___\n" +
		" / __/ _ \\| '_ \\ \\ / / _ \\/ __| __/ _ \\| '__/ _ \\\n" +
		"| (_| (_) | | | \\ V / (_) \\__ \\ || (_) | | |  __/\n" +
		" \\___\\___/|_| |_|\\_/ \\___/|___/\\__\\___/|_|  \\___|\n"
)

var (
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "convostore",
	Short:        "convostore - local archive for AI chat exports",
	Long:         color.CyanString(logo) + "\nIngest ChatGPT, Anthropic and Grok exports into one deduplicated, searchable SQLite store.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		level, _ := cfg.Log.SlogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context, which ingest observes between batch commits.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
}
