package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/s0up4200/posterarr/history"
)

var (
	historyLimit      int
	historyItem       string
	historySince      time.Duration
	historyStats      bool
	historySkipDryRun bool
	historyJSON       bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent artwork changes",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of changes to show")
	historyCmd.Flags().StringVar(&historyItem, "item", "", "show changes for one item (Plex rating key)")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "show every change from this long ago (e.g. 24h)")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "show totals instead of changes")
	historyCmd.Flags().BoolVar(&historySkipDryRun, "no-dry-run", false, "hide dry run entries")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	log, err := openHistory()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer log.Close()

	ctx := cmd.Context()

	if historyStats {
		stats, err := log.Stats(ctx)
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(stats)
		}

		fmt.Printf("Total changes:       %d\n", stats.TotalChanges)
		fmt.Printf("Posters changed:     %d\n", stats.PostersChanged)
		fmt.Printf("Backgrounds changed: %d\n", stats.BackgroundsChanged)
		fmt.Printf("Unique items:        %d\n", stats.UniqueItems)
		sources := make([]string, 0, len(stats.BySource))
		for s := range stats.BySource {
			sources = append(sources, s)
		}
		sort.Strings(sources)
		for _, s := range sources {
			fmt.Printf("  • %s: %d\n", s, stats.BySource[s])
		}
		return nil
	}

	var changes []history.Change
	switch {
	case historyItem != "":
		changes, err = log.ByItem(ctx, historyItem)
	case historySince > 0:
		now := time.Now()
		changes, err = log.Between(ctx, now.Add(-historySince), now)
		if err == nil && historySkipDryRun {
			changes = withoutDryRuns(changes)
		}
	default:
		changes, err = log.Recent(ctx, historyLimit, historySkipDryRun)
	}
	if err != nil {
		return err
	}

	if historyJSON {
		return printJSON(changes)
	}

	if len(changes) == 0 {
		fmt.Println("No changes recorded.")
		return nil
	}

	for _, c := range changes {
		var parts []string
		if c.PosterChanged {
			parts = append(parts, "poster")
		}
		if c.BackgroundChanged {
			parts = append(parts, "background")
		}
		fmt.Printf("%s  %s [%s] %s from %s", c.Timestamp.Local().Format("2006-01-02 15:04"), c.ItemTitle, c.ItemID, strings.Join(parts, "+"), c.Source)
		if c.DryRun {
			fmt.Print(" (dry run)")
		}
		fmt.Println()
	}
	return nil
}

func withoutDryRuns(changes []history.Change) []history.Change {
	out := changes[:0]
	for _, c := range changes {
		if !c.DryRun {
			out = append(out, c)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
