package transfer_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modeldepot/core/internal/observability"
	"github.com/modeldepot/core/internal/waiting"
	"github.com/modeldepot/core/pkg/transfer"
)

// newGitRepo creates a local repository with one committed file, for
// cloning over the file protocol.
func newGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t,
		os.WriteFile(filepath.Join(dir, "weights.txt"), []byte("tiny weights"), 0o644))

	worktree, err := repo.Worktree()
	require.NoError(t, err)
	_, err = worktree.Add("weights.txt")
	require.NoError(t, err)
	_, err = worktree.Commit("add weights", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "tester",
			Email: "tester@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)

	return dir
}

func TestGitTransferClonesRepository(t *testing.T) {
	src := newGitRepo(t)
	dest := filepath.Join(t.TempDir(), "clones", "llama")
	gt := transfer.NewGitTransfer(observability.NewNoOpLogger(), waiting.NoDelay())
	task := &transfer.Task{Key: dest, GitURL: src, Path: dest}

	require.NoError(t, gt.Transfer(context.Background(), task))

	assert.FileExists(t, filepath.Join(dest, "weights.txt"))
	_, err := git.PlainOpen(dest)
	assert.NoError(t, err)
}

func TestGitTransferSkipsExistingDirectory(t *testing.T) {
	dest := t.TempDir()
	gt := transfer.NewGitTransfer(observability.NewNoOpLogger(), waiting.NoDelay())
	gt.CloneCommand = func(gitURL, dest string) *exec.Cmd {
		t.Fatal("clone must not run for an existing destination")
		return nil
	}
	task := &transfer.Task{
		Key:    dest,
		GitURL: "https://example.com/llama.git",
		Path:   dest,
	}

	assert.NoError(t, gt.Transfer(context.Background(), task))
}

func TestGitTransferCancelRemovesDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "llama")
	gt := transfer.NewGitTransfer(observability.NewNoOpLogger(), waiting.NoDelay())
	gt.CloneCommand = func(gitURL, dest string) *exec.Cmd {
		return exec.Command("sh", "-c",
			fmt.Sprintf("mkdir -p '%s' && sleep 60", dest))
	}
	task := &transfer.Task{
		Key:    dest,
		GitURL: "https://example.com/llama.git",
		Path:   dest,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- gt.Transfer(ctx, task) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(dest)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.NoDirExists(t, dest)
}

func TestGitTransferReportsCloneFailure(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "llama")
	gt := transfer.NewGitTransfer(observability.NewNoOpLogger(), waiting.NoDelay())
	gt.CloneCommand = func(gitURL, dest string) *exec.Cmd {
		return exec.Command("sh", "-c",
			"echo 'fatal: repository not found' >&2; exit 128")
	}
	task := &transfer.Task{
		Key:    dest,
		GitURL: "https://example.com/missing.git",
		Path:   dest,
	}

	err := gt.Transfer(context.Background(), task)

	require.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "repository not found")
}

func TestGitTransferRejectsNonRepositoryResult(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "llama")
	gt := transfer.NewGitTransfer(observability.NewNoOpLogger(), waiting.NoDelay())
	gt.CloneCommand = func(gitURL, dest string) *exec.Cmd {
		return exec.Command("mkdir", "-p", dest)
	}
	task := &transfer.Task{
		Key:    dest,
		GitURL: "https://example.com/llama.git",
		Path:   dest,
	}

	err := gt.Transfer(context.Background(), task)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no repository")
}
