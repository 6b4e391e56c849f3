package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s0up4200/posterarr/backup"
	"github.com/s0up4200/posterarr/history"
)

var (
	restoreAll  bool
	restoreKeep bool
)

// restoreCmd represents the restore command
var restoreCmd = &cobra.Command{
	Use:   "restore [item-id...]",
	Short: "Put back the artwork an item had before posterarr changed it",
	Long: `Without arguments the stored backups are listed. Pass Plex rating keys, or
--all, to upload the backed up artwork again.`,
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().BoolVar(&restoreAll, "all", false, "restore every backup")
	restoreCmd.Flags().BoolVar(&restoreKeep, "keep", false, "keep backups after restoring")
}

func runRestore(cmd *cobra.Command, args []string) error {
	st, err := loadState()
	if err != nil {
		return err
	}

	if len(args) == 0 && !restoreAll {
		printBackups(st.Backups.List())
		return nil
	}

	ids := args
	if restoreAll {
		ids = nil
		for _, e := range st.Backups.List() {
			ids = append(ids, e.ItemID)
		}
	}

	plexServer, err := newPlex()
	if err != nil {
		return err
	}
	hist, err := openHistory()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer hist.Close()

	ctx := cmd.Context()
	var errs []error
	restored := 0

	for _, id := range ids {
		if cfg.Processing.DryRun {
			if e, ok := st.Backups.Get(id); ok {
				logger.Info().Str("title", e.Title).Msg("[DRY RUN] Would restore artwork")
			}
			continue
		}

		e, err := st.Backups.Restore(ctx, plexServer, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		restored++

		change := history.Change{
			ItemTitle:         e.Title,
			ItemID:            e.ItemID,
			MediaType:         e.MediaType,
			PosterChanged:     e.PosterURL != "",
			BackgroundChanged: e.BackgroundURL != "",
			Source:            "backup",
			NewPosterURL:      e.PosterURL,
			NewBackgroundURL:  e.BackgroundURL,
		}
		if err := hist.Record(ctx, change); err != nil {
			logger.Warn().Err(err).Msg("Failed to record restore")
		}

		if !restoreKeep {
			st.Backups.Remove(id)
		}
	}

	if err := st.Save(); err != nil {
		logger.Warn().Err(err).Msg("Failed to save state")
	}

	if !cfg.Processing.DryRun {
		fmt.Printf("✓ Restored %d of %d items\n", restored, len(ids))
	}
	return errors.Join(errs...)
}

func printBackups(entries []backup.Entry) {
	if len(entries) == 0 {
		fmt.Println("No backups stored.")
		return
	}

	fmt.Printf("%d backups:\n\n", len(entries))
	for _, e := range entries {
		fmt.Printf("• %s [%s] backed up %s\n", e.Title, e.ItemID, e.Time().Local().Format("2006-01-02 15:04"))
	}
}
