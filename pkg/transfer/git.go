package transfer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	git "github.com/go-git/go-git/v5"

	"github.com/modeldepot/core/internal/observability"
	"github.com/modeldepot/core/internal/waiting"
)

const stderrTailBytes = 512

// GitTransfer fetches artifacts by cloning a git repository into the
// destination directory.
type GitTransfer struct {
	logger    *observability.CoreLogger
	termGrace waiting.Delay

	// CloneCommand builds the clone subprocess. Tests substitute it to
	// avoid hitting the network.
	CloneCommand func(gitURL, dest string) *exec.Cmd
}

func NewGitTransfer(logger *observability.CoreLogger, termGrace waiting.Delay) *GitTransfer {
	return &GitTransfer{
		logger:    logger,
		termGrace: termGrace,
		CloneCommand: func(gitURL, dest string) *exec.Cmd {
			return exec.Command("git", "clone", "--", gitURL, dest)
		},
	}
}

// Transfer clones task.GitURL into task.Path. An existing destination
// directory is treated as already cloned and left untouched. A
// cancelled clone is terminated and its directory removed.
func (gt *GitTransfer) Transfer(ctx context.Context, task *Task) error {
	if info, err := os.Stat(task.Path); err == nil && info.IsDir() {
		gt.logger.Debug("transfer: destination already cloned", "path", task.Path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(task.Path), os.ModePerm); err != nil {
		return err
	}

	gt.logger.Debug("transfer: cloning repository", "url", task.GitURL, "path", task.Path)

	cmd := gt.CloneCommand(task.GitURL, task.Path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("transfer: starting git clone: %w", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		if err != nil {
			return fmt.Errorf("transfer: git clone of %s failed: %w: %s",
				task.GitURL, err, stderrTail(&stderr))
		}
		if _, err := git.PlainOpen(task.Path); err != nil {
			return fmt.Errorf("transfer: clone left no repository at %s: %w", task.Path, err)
		}
		return nil
	case <-ctx.Done():
		gt.terminate(cmd, waitCh)
		if err := os.RemoveAll(task.Path); err != nil {
			gt.logger.CaptureError(
				fmt.Errorf("transfer: clone: error removing partial clone %s: %v", task.Path, err))
		}
		return ctx.Err()
	}
}

// terminate asks the clone subprocess to exit, escalating to a kill
// after the grace period.
func (gt *GitTransfer) terminate(cmd *exec.Cmd, waitCh <-chan error) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
		<-waitCh
		return
	}
	grace, stop := gt.termGrace.Wait()
	defer stop()
	select {
	case <-waitCh:
	case <-grace:
		_ = cmd.Process.Kill()
		<-waitCh
	}
}

func stderrTail(buf *bytes.Buffer) string {
	s := strings.TrimSpace(buf.String())
	if len(s) > stderrTailBytes {
		s = s[len(s)-stderrTailBytes:]
	}
	return s
}
