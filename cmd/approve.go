package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s0up4200/posterarr/proposal"
)

var (
	approveAll bool
	rejectIDs  bool
)

// approveCmd represents the approve command
var approveCmd = &cobra.Command{
	Use:   "approve [proposal-id...]",
	Short: "List, apply or reject artwork changes queued in approval mode",
	Long: `Without arguments the pending proposals are listed. Pass proposal ids, or
--all, to upload the proposed artwork. Add --reject to discard them instead.`,
	RunE: runApprove,
}

func init() {
	rootCmd.AddCommand(approveCmd)

	approveCmd.Flags().BoolVar(&approveAll, "all", false, "apply every pending proposal")
	approveCmd.Flags().BoolVar(&rejectIDs, "reject", false, "discard the selected proposals instead of applying them")
}

func runApprove(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !approveAll {
		st, err := loadState()
		if err != nil {
			return err
		}
		printProposals(st.Proposals.List())
		return nil
	}

	eng, err := newEngine(filterSelection{})
	if err != nil {
		return err
	}
	defer eng.Close()

	// Take with no ids takes everything
	selected := eng.state.Proposals.Take(args...)
	if len(selected) == 0 {
		fmt.Println("No matching proposals.")
		return nil
	}

	if rejectIDs {
		fmt.Printf("✓ Rejected %d proposals\n", len(selected))
		return nil
	}

	if cfg.Processing.DryRun {
		for _, p := range selected {
			logger.Info().Str("title", p.Title).Msg("[DRY RUN] Would apply proposal")
		}
		// keep them queued
		for _, p := range selected {
			eng.state.Proposals.Add(p)
		}
		return nil
	}

	applied, err := eng.processor.ApplyProposals(cmd.Context(), selected)
	fmt.Printf("✓ Applied %d of %d proposals\n", applied, len(selected))
	return err
}

func printProposals(proposals []proposal.Proposal) {
	if len(proposals) == 0 {
		fmt.Println("No pending proposals.")
		return
	}

	fmt.Printf("%d pending proposals:\n\n", len(proposals))
	for _, p := range proposals {
		fmt.Printf("• %s [%s] via %s\n", p.Title, p.ID, p.Source)
		if p.NewPosterURL != "" {
			fmt.Printf("  Poster:     %s\n", p.NewPosterURL)
		}
		if p.NewBackgroundURL != "" {
			fmt.Printf("  Background: %s\n", p.NewBackgroundURL)
		}
	}
}
