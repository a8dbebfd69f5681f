package inbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

const dirPerm = 0750

// DirConfig is the on-disk layout.
type DirConfig struct {
	Inbox  string // incoming event files
	Outbox string // results
	State  string // state/{processing,done,failed}
}

// ProcessingDir holds jobs being evaluated.
func (d DirConfig) ProcessingDir() string { return filepath.Join(d.State, "processing") }

// DoneDir holds jobs that produced a verdict.
func (d DirConfig) DoneDir() string { return filepath.Join(d.State, "done") }

// FailedDir holds jobs that could not be evaluated.
func (d DirConfig) FailedDir() string { return filepath.Join(d.State, "failed") }

// Validate checks that every directory is set.
func (d DirConfig) Validate() error {
	if d.Inbox == "" || d.Outbox == "" || d.State == "" {
		return errors.New("inbox: inbox, outbox, and state directories are required")
	}
	return nil
}

// EnsureDirs creates every directory. Idempotent.
func EnsureDirs(d DirConfig) error {
	for _, dir := range []string{d.Inbox, d.Outbox, d.ProcessingDir(), d.DoneDir(), d.FailedDir()} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("inbox: create directory %s: %w", dir, err)
		}
	}
	return nil
}

// moveFile renames src to dst, falling back to copy and remove across
// devices (EXDEV), as happens with bind-mounted state directories.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if !errors.As(err, &errno) || errno != syscall.EXDEV {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
