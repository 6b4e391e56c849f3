package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/s0up4200/posterarr/processor"
)

var (
	libraries  []string
	filterExpr string
	preset     string
	approval   bool
	overwrite  bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fill missing artwork once",
	Long: `Process the selected Plex libraries once and fill missing posters and
backgrounds.

Libraries default to every movie and TV library. Use --library more than
once, or a comma separated list, to restrict the run.`,
	Example: `  posterarr run --library Movies --dry-run
  posterarr run --filter 'Year >= 2020 && !HasPoster'
  posterarr run --preset recent --approval`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVarP(&libraries, "library", "l", nil, "library names to process (default: all movie and TV libraries)")
	runCmd.Flags().StringVarP(&filterExpr, "filter", "f", "", "filter expression")
	runCmd.Flags().StringVarP(&preset, "preset", "p", "", "use a preset filter from config")
	runCmd.Flags().BoolVar(&approval, "approval", false, "queue changes for approval instead of uploading")
	runCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing artwork")
}

func runRun(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("approval") {
		cfg.Processing.Approval = approval
	}
	if cmd.Flags().Changed("overwrite") {
		cfg.Artwork.Overwrite = overwrite
	}

	eng, err := newEngine(filterSelection{expression: filterExpr, preset: preset})
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := cmd.Context()
	eng.cleanup(ctx)

	names := libraries
	if len(names) == 0 {
		names = cfg.Artwork.Libraries
	}

	summary, err := eng.processor.Run(ctx, names)
	printSummary(summary)
	return err
}

func printSummary(s processor.Summary) {
	title := "Run summary"
	if s.DryRun {
		title += " (dry run)"
	}

	fmt.Printf("\n%s\n", title)
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Libraries:        %d", s.Libraries)
	if s.LibraryErrors > 0 {
		fmt.Printf(" (%d failed)", s.LibraryErrors)
	}
	fmt.Println()
	fmt.Printf("Items processed:  %d\n", s.Processed)
	fmt.Printf("Updated:          %d (%d posters, %d backgrounds)\n", s.Updated, s.PostersChanged, s.BackgroundsChanged)
	if s.Proposed > 0 {
		fmt.Printf("Proposed:         %d\n", s.Proposed)
	}
	fmt.Printf("Already complete: %d\n", s.Skipped)
	fmt.Printf("Filtered out:     %d\n", s.Filtered)
	fmt.Printf("No match:         %d\n", s.NoMatch)
	fmt.Printf("Errors:           %d\n", s.Errors)
	fmt.Printf("Duration:         %s\n", s.Duration.Round(100*time.Millisecond))
}
