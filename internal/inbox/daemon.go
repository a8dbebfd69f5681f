package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/sitaware/internal/protocol"
)

// Config holds daemon settings.
type Config struct {
	Dirs         DirConfig
	Poll         bool
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Daemon watches the inbox and evaluates each job against one session.
type Daemon struct {
	cfg       Config
	processor *Processor
	logger    *zap.Logger
}

// New validates cfg and creates a daemon.
func New(cfg Config, e *protocol.Evaluator) (*Daemon, error) {
	if err := cfg.Dirs.Validate(); err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errors.New("inbox: evaluator is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = pollDefault
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Daemon{cfg: cfg, processor: NewProcessor(cfg.Dirs, e, logger), logger: logger}, nil
}

// Run processes leftovers and then watches the inbox until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := EnsureDirs(d.cfg.Dirs); err != nil {
		return err
	}

	pidPath := filepath.Join(d.cfg.Dirs.State, "sitaware.pid")
	if err := acquirePIDLock(pidPath); err != nil {
		return fmt.Errorf("inbox: acquire PID lock: %w", err)
	}
	defer func() { _ = os.Remove(pidPath) }()

	if err := d.recoverOrphans(); err != nil {
		return fmt.Errorf("inbox: recover orphans: %w", err)
	}
	if err := ScanExisting(ctx, d.cfg.Dirs.Inbox, d.handle); err != nil {
		return fmt.Errorf("inbox: scan existing: %w", err)
	}

	d.logger.Info("inbox watching",
		zap.String("dir", d.cfg.Dirs.Inbox),
		zap.Bool("poll", d.cfg.Poll),
	)
	if d.cfg.Poll {
		return NewPollWatcher(d.cfg.Dirs.Inbox, d.handle, d.cfg.PollInterval).Run(ctx)
	}
	return NewWatcher(d.cfg.Dirs.Inbox, d.handle, d.logger).Run(ctx)
}

func (d *Daemon) handle(ctx context.Context, path string) {
	if err := d.processor.Process(ctx, path); err != nil {
		d.logger.Error("process job", zap.String("file", filepath.Base(path)), zap.Error(err))
	}
}

// recoverOrphans fails jobs left in processing by a crash or restart.
func (d *Daemon) recoverOrphans() error {
	entries, err := os.ReadDir(d.cfg.Dirs.ProcessingDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isJobFile(e.Name()) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		result := &Result{
			ID:          id,
			Status:      ResultFailed,
			ErrorClass:  string(protocol.ClassInternal),
			Error:       "interrupted: job was processing when the daemon stopped",
			CompletedAt: time.Now().UTC(),
		}
		if err := d.processor.writeResult(result); err != nil {
			d.logger.Warn("recover orphan", zap.String("job", id), zap.Error(err))
		}
		src := filepath.Join(d.cfg.Dirs.ProcessingDir(), e.Name())
		if err := moveFile(src, filepath.Join(d.cfg.Dirs.FailedDir(), e.Name())); err != nil {
			_ = os.Remove(src)
		}
	}
	return nil
}

// acquirePIDLock writes the current PID, replacing a stale lock file.
func acquirePIDLock(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid != os.Getpid() {
			if process, err := os.FindProcess(pid); err == nil {
				if process.Signal(syscall.Signal(0)) == nil {
					return fmt.Errorf("another daemon is running (PID %d)", pid)
				}
			}
		}
		_ = os.Remove(path)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600)
}
