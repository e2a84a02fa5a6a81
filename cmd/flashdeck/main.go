package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/flashdeck/internal/config"
)

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"addr":          "server.addr",
	"db":            "database.path",
	"questions-dir": "content.questions_dir",
	"media-dir":     "content.media_dir",
	"git-url":       "content.git_url",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "flashdeck",
		Short:         "Flashcard progress tracking and sync server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file (default "+config.DefaultFile+" if present)")
	flags.String("addr", "", "HTTP listen address")
	flags.String("db", "", "SQLite database file")
	flags.String("questions-dir", "", "directory of deck CSV files")
	flags.String("media-dir", "", "directory of stored media")
	flags.String("git-url", "", "git repository to sync the questions directory from")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "text or json")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		return config.Load(config.Options{
			File:     configFile,
			Flags:    cmd.Flags(),
			FlagKeys: flagKeys,
		})
	}

	root.AddCommand(
		newServeCommand(load),
		newImportCommand(load),
		newMigrateCommand(load),
	)
	return root
}

// configLoader reads the configuration for a command.
type configLoader func(cmd *cobra.Command) (*config.Config, error)
