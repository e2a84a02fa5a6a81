// Package gitsource keeps a local checkout of a git-hosted questions
// directory up to date.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Sync clones a git repository if it doesn't exist at the given path,
// or pulls the latest changes if it does. An empty ref follows the
// remote's default branch.
func Sync(ctx context.Context, url, ref, localPath string) error {
	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		return clone(ctx, url, ref, localPath)
	case err != nil:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	empty, err := isEmptyDir(localPath)
	if err != nil {
		return err
	}
	if empty {
		return clone(ctx, url, ref, localPath)
	}
	return pull(ctx, ref, localPath)
}

func clone(ctx context.Context, url, ref, localPath string) error {
	slog.Info("Cloning questions repository", "url", url, "path", localPath)
	opts := &git.CloneOptions{URL: url}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
		opts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(ctx, localPath, false, opts); err != nil {
		return fmt.Errorf("failed to clone repo %s: %w", url, err)
	}
	slog.Info("Clone successful", "path", localPath)
	return nil
}

func pull(ctx context.Context, ref, localPath string) error {
	slog.Info("Pulling latest changes", "path", localPath)
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
	}

	opts := &git.PullOptions{RemoteName: "origin"}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
		opts.SingleBranch = true
	}
	err = worktree.PullContext(ctx, opts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
	}
	slog.Info("Pull successful (or already up-to-date)", "path", localPath)
	return nil
}

func isEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return len(entries) == 0, nil
}
