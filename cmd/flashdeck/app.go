package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/conorfennell/flashdeck/internal/config"
	"github.com/conorfennell/flashdeck/internal/gitsource"
	"github.com/conorfennell/flashdeck/internal/importer"
	"github.com/conorfennell/flashdeck/internal/media"
	"github.com/conorfennell/flashdeck/internal/storage"
)

// app holds what every command opens: the migrated store and the media
// directory.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store *storage.Store
	media *media.Store
}

// openApp opens the database, runs every pending migration and opens the
// media store. A failed migration is returned and must stop the process.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := config.NewLogger(cfg.Log)

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	owner := storage.Owner{Email: cfg.Auth.AdminEmail, Name: cfg.Auth.AdminName}
	if err := store.Migrate(ctx, owner); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate %s: %w", cfg.Database.Path, err)
	}

	mediaStore, err := media.Open(cfg.Content.MediaDir, cfg.Content.MediaPrefix)
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.Info("database ready",
		slog.String("path", cfg.Database.Path),
		slog.String("media_dir", cfg.Content.MediaDir),
	)
	return &app{cfg: cfg, log: logger, store: store, media: mediaStore}, nil
}

func (a *app) Close() error {
	return errors.Join(a.media.Close(), a.store.Close())
}

// syncContent pulls the questions directory from git when a repository is
// configured.
func (a *app) syncContent(ctx context.Context) error {
	if a.cfg.Content.GitURL == "" {
		return nil
	}
	return gitsource.Sync(ctx, a.cfg.Content.GitURL, a.cfg.Content.GitRef, a.cfg.Content.QuestionsDir)
}

// importDecks creates decks for CSV files not imported yet.
func (a *app) importDecks(ctx context.Context) (importer.Result, error) {
	fetcher := importer.NewFetcher(importer.FetchConfig{
		Timeout:  a.cfg.Import.FetchTimeout,
		Attempts: a.cfg.Import.FetchAttempts,
		MaxBytes: a.cfg.Import.MaxImageBytes,
	})
	im := importer.New(a.log, a.store, a.media, fetcher)
	return im.Run(ctx, a.cfg.Content.QuestionsDir)
}
