package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/KafClaw/convostore/internal/archive"
	"github.com/KafClaw/convostore/internal/identity"
	"github.com/KafClaw/convostore/internal/ingest"
	"github.com/KafClaw/convostore/internal/source"
)

var (
	ingestIn        string
	ingestFormat    string
	ingestDB        string
	ingestPlatform  string
	ingestAccount   string
	ingestSourceID  string
	ingestBatchSize int
	ingestDryRun    bool
	ingestTest      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a conversation export into the store",
	Long: "Parse a ChatGPT, Anthropic or Grok export and write its messages to the store.\n" +
		"Messages already present are skipped, so re-ingesting an export is safe.",
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestIn, "in", "", "Path to the export file")
	f.StringVar(&ingestFormat, "format", "", "Export format ("+strings.Join(source.Formats(), "|")+")")
	f.StringVar(&ingestDB, "db", "", "Path to the SQLite store (required unless --dry-run)")
	f.StringVar(&ingestPlatform, "platform", "", "Platform tag (defaults to the format)")
	f.StringVar(&ingestAccount, "account", "", "Account id (default from config, \"main\")")
	f.StringVar(&ingestSourceID, "source-id", "", "Ingestion batch tag (default from config, \"src_0001\")")
	f.IntVar(&ingestBatchSize, "batch-size", 0, "Rows per transaction (default from config)")
	f.BoolVar(&ingestDryRun, "dry-run", false, "Parse and summarize without touching the store")
	f.BoolVar(&ingestTest, "test", false, "Alias for --dry-run")
	_ = ingestCmd.MarkFlagRequired("in")
	_ = ingestCmd.MarkFlagRequired("format")
}

func runIngest(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	src, err := source.Lookup(ingestFormat)
	if err != nil {
		return err
	}
	dryRun := ingestDryRun || ingestTest
	dbPath := firstNonEmpty(ingestDB, cfg.Store.Path)
	if !dryRun && dbPath == "" {
		return errors.New("--db is required unless using --dry-run")
	}
	scope := identity.Scope{
		Platform: firstNonEmpty(ingestPlatform, cfg.Ingest.Platform, src.Format()),
		Account:  firstNonEmpty(ingestAccount, cfg.Ingest.Account),
	}
	batchSize := cfg.Store.BatchSize
	if cmd.Flags().Changed("batch-size") {
		if ingestBatchSize <= 0 {
			return fmt.Errorf("--batch-size must be positive, got %d", ingestBatchSize)
		}
		batchSize = ingestBatchSize
	}

	if fi, err := os.Stat(ingestIn); err == nil {
		fmt.Fprintf(out, "Parsing %s export: %s (%s)\n", src.Format(), ingestIn, humanize.Bytes(uint64(fi.Size())))
	} else {
		fmt.Fprintf(out, "Parsing %s export: %s\n", src.Format(), ingestIn)
	}
	g, err := ingest.Group(ctx, src.Records(ctx, ingestIn))
	if err != nil {
		return fmt.Errorf("parse %s export: %w", src.Format(), err)
	}
	if g.Records == 0 {
		fmt.Fprintln(out, warn("No messages found in export"))
		return nil
	}
	fmt.Fprintf(out, "Parsed %s messages from %s threads\n", humanize.Comma(int64(g.Records)), humanize.Comma(int64(len(g.Threads))))

	if dryRun {
		printDryRun(out, g)
		return nil
	}

	store, err := archive.Open(dbPath, archive.Options{BusyTimeout: cfg.Store.BusyTimeout()})
	if err != nil {
		return err
	}
	defer store.Close()

	w := &ingest.Writer{
		Store:     store,
		Scope:     scope,
		SourceID:  firstNonEmpty(ingestSourceID, cfg.Ingest.SourceID),
		BatchSize: batchSize,
		RunID:     uuid.NewString(),
	}
	slog.Info("Writing to store", "run_id", w.RunID, "db", dbPath, "threads", len(g.Threads), "batch_size", batchSize)
	fmt.Fprintf(out, "Writing to store: %s\n", dbPath)
	res, err := w.Write(ctx, g.Threads)
	if err != nil {
		fmt.Fprintf(out, "Stopped after %d inserted, %d duplicates\n", res.Inserted, res.Duplicates)
		return fmt.Errorf("write: %w", err)
	}

	fmt.Fprintln(out, ok("Ingestion complete"))
	fmt.Fprintf(out, "  Inserted:           %s\n", humanize.Comma(int64(res.Inserted)))
	fmt.Fprintf(out, "  Duplicates skipped: %s\n", humanize.Comma(int64(res.Duplicates)))
	fmt.Fprintf(out, "  Total in store:     %s\n", humanize.Comma(res.Total))
	return nil
}

func printDryRun(out io.Writer, g ingest.Grouping) {
	fmt.Fprintln(out, "\nDry run, sample messages:")
	for i, rec := range g.Samples {
		created, known := identity.FormatTimestamp(rec.CreatedAt)
		if !known {
			created = "(unknown)"
		}
		fmt.Fprintf(out, "\nMessage %d:\n", i+1)
		fmt.Fprintf(out, "  Thread:  %s\n", titleOrPlaceholder(rec.ThreadTitle, 50))
		fmt.Fprintf(out, "  Role:    %s\n", rec.Role)
		fmt.Fprintf(out, "  Content: %s...\n", identity.Snippet(rec.Content, 100))
		fmt.Fprintf(out, "  Created: %s\n", created)
	}
	if more := g.Records - len(g.Samples); more > 0 {
		fmt.Fprintf(out, "\n... and %d more messages\n", more)
	}

	s := ingest.Summarize(g)
	fmt.Fprintln(out, "\nThread statistics:")
	fmt.Fprintf(out, "  Total threads: %d\n", s.Threads)
	fmt.Fprintf(out, "  Average messages per thread: %.1f\n", s.AvgPerThread)
	fmt.Fprintf(out, "  Messages without timestamps: %d\n", s.Untimed)
	fmt.Fprintf(out, "\n  Top %d threads by message count:\n", len(s.Top))
	for i, tc := range s.Top {
		fmt.Fprintf(out, "    %d. %s: %d messages\n", i+1, titleOrPlaceholder(tc.Title, 60), tc.Messages)
	}
	fmt.Fprintln(out, "\n"+ok("Dry run complete, no database was modified"))
}

func titleOrPlaceholder(title string, n int) string {
	if t := identity.Snippet(title, n); t != "" {
		return t
	}
	return "(no title)"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
