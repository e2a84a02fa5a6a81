package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newImportCommand(load configLoader) *cobra.Command {
	var skipSync bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import deck CSV files that are not in the database yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if !skipSync {
				if err := a.syncContent(cmd.Context()); err != nil {
					return fmt.Errorf("sync questions: %w", err)
				}
			}
			res, err := a.importDecks(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d decks with %d cards, skipped %d known decks and %d unreadable files, %d images failed.\n",
				res.DecksCreated, res.CardsInserted, res.DecksSkipped, res.FilesSkipped, res.ImagesFailed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipSync, "no-sync", false, "do not pull the questions repository first")
	return cmd
}
