package gitsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// newOrigin creates a repository with one committed deck file.
func newOrigin(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commitFile(t, repo, dir, "basics.csv", "Question;Answer\nq1;a1\n")
	return dir, repo
}

func commitFile(t *testing.T, repo *git.Repository, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)
	_, err = wt.Commit("add "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func TestSyncClonesThenPulls(t *testing.T) {
	ctx := context.Background()
	origin, repo := newOrigin(t)
	local := filepath.Join(t.TempDir(), "questions")

	require.NoError(t, Sync(ctx, origin, "", local))
	data, err := os.ReadFile(filepath.Join(local, "basics.csv"))
	require.NoError(t, err)
	if string(data) != "Question;Answer\nq1;a1\n" {
		t.Errorf("Expected cloned deck content, but got %q", data)
	}

	commitFile(t, repo, origin, "extra.csv", "Question;Answer\nq2;a2\n")
	require.NoError(t, Sync(ctx, origin, "", local))
	if _, err := os.Stat(filepath.Join(local, "extra.csv")); err != nil {
		t.Errorf("Expected pulled file to exist, but got %v", err)
	}

	// Nothing new upstream is not an error.
	require.NoError(t, Sync(ctx, origin, "", local))
}

func TestSyncIntoEmptyDirectory(t *testing.T) {
	origin, _ := newOrigin(t)
	local := t.TempDir()

	require.NoError(t, Sync(context.Background(), origin, "", local))
	if _, err := os.Stat(filepath.Join(local, "basics.csv")); err != nil {
		t.Errorf("Expected cloned file to exist, but got %v", err)
	}
}

func TestSyncRejectsNonRepository(t *testing.T) {
	local := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(local, "notes.txt"), []byte("x"), 0o644))

	if err := Sync(context.Background(), "/does/not/matter", "", local); err == nil {
		t.Error("Expected an error for a directory that is not a repository, but got nil")
	}
}
