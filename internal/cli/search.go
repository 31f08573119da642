package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KafClaw/convostore/internal/archive"
	"github.com/KafClaw/convostore/internal/identity"
)

var (
	searchDB       string
	searchLimit    int
	searchPlatform string
	searchAccount  string
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Full-text search over stored messages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchDB, "db", "", "Path to the SQLite store")
	f.IntVar(&searchLimit, "limit", 20, "Maximum number of results")
	f.StringVar(&searchPlatform, "platform", "", "Only match this platform")
	f.StringVar(&searchAccount, "account", "", "Only match this account")
}

func runSearch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	store, err := openExistingStore(searchDB)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.Search(cmd.Context(), strings.Join(args, " "), archive.SearchOptions{
		Limit:    searchLimit,
		Platform: searchPlatform,
		Account:  searchAccount,
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, warn("No matches"))
		return nil
	}
	for _, r := range results {
		title := titleOrPlaceholder(r.Title, 60)
		fmt.Fprintf(out, "%s  %s/%s  %s  %s\n", r.TS, r.Platform, r.AccountID, r.Role, title)
		fmt.Fprintf(out, "    %s\n", oneLine(identity.Snippet(r.Text, 160)))
	}
	fmt.Fprintf(out, "%d results\n", len(results))
	return nil
}

// openExistingStore opens the store named by the flag or config. Read-only
// commands refuse to create a new file.
func openExistingStore(flagPath string) (*archive.Store, error) {
	path := firstNonEmpty(flagPath, cfg.Store.Path)
	if path == "" {
		return nil, errors.New("--db is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store %s: %w", path, err)
	}
	return archive.Open(path, archive.Options{BusyTimeout: cfg.Store.BusyTimeout()})
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
