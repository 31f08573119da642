package cli

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statsDB string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader(cmd.OutOrStdout(), "convostore version")
		fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", version)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store row counts and index consistency",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsDB, "db", "", "Path to the SQLite store")
}

func runStats(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	store, err := openExistingStore(statsDB)
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	printHeader(out, "convostore stats")
	fmt.Fprintf(out, "Messages:   %s\n", humanize.Comma(st.Messages))
	fmt.Fprintf(out, "Threads:    %s\n", humanize.Comma(st.Threads))
	fmt.Fprintf(out, "Index rows: %s\n", humanize.Comma(st.IndexRows))
	fmt.Fprintf(out, "Doc ids:    %s\n", humanize.Comma(st.DocIDs))

	platforms := make([]string, 0, len(st.ByPlatform))
	for p := range st.ByPlatform {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	for _, p := range platforms {
		fmt.Fprintf(out, "  %-10s %s\n", p, humanize.Comma(st.ByPlatform[p]))
	}

	if st.Consistent() {
		fmt.Fprintln(out, "Index:      "+ok("consistent"))
	} else {
		fmt.Fprintln(out, "Index:      "+bad(fmt.Sprintf("mismatch (%d messages without index entry)", st.Unindexed)))
	}
	return nil
}
