package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conorfennell/flashdeck/internal/auth"
	"github.com/conorfennell/flashdeck/internal/study"
	"github.com/conorfennell/flashdeck/internal/web"
)

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Migrate, import new decks and serve the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	authSvc, err := auth.NewService(a.log, a.store, auth.Config{
		SessionTTL: a.cfg.Auth.SessionTTL,
		BcryptCost: a.cfg.Auth.BcryptCost,
	})
	if err != nil {
		return err
	}
	err = authSvc.EnsureAdmin(ctx, auth.AdminAccount{
		Email:    a.cfg.Auth.AdminEmail,
		Name:     a.cfg.Auth.AdminName,
		Password: a.cfg.Auth.AdminPassword,
	})
	if err != nil {
		return fmt.Errorf("ensure administrator: %w", err)
	}

	if a.cfg.Content.ImportOnStart {
		if err := a.syncContent(ctx); err != nil {
			a.log.Error("questions sync failed, importing what is on disk", slog.String("error", err.Error()))
		}
		if _, err := a.importDecks(ctx); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}

	studySvc := study.NewService(a.log, a.store, a.media, a.cfg.Content.QuestionsDir)
	handler := web.NewServer(a.log, *a.cfg, web.Deps{
		Auth:  authSvc,
		Study: studySvc,
		Media: a.media,
		DB:    a.store,
	})
	defer handler.Close()

	srv := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(a.log.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
