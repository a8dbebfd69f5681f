package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/protocol"
)

// Processor moves one job file through its lifecycle:
// read, validate, move to processing, evaluate, write result, archive.
type Processor struct {
	dirs      DirConfig
	evaluator *protocol.Evaluator
	logger    *zap.Logger
	now       func() time.Time
}

// NewProcessor creates a processor that evaluates against e.
func NewProcessor(dirs DirConfig, e *protocol.Evaluator, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{dirs: dirs, evaluator: e, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Process evaluates the job at path. Job-level failures (bad JSON, invalid
// job, evaluation errors) produce a failed result and return nil; only
// filesystem failures are returned.
func (p *Processor) Process(ctx context.Context, path string) error {
	// Symlinks could point the daemon at arbitrary files.
	fi, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("inbox: stat job file: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		_ = os.Remove(path)
		return fmt.Errorf("inbox: rejected symlink: %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("inbox: read job file: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".json")
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return p.reject(path, name, fmt.Sprintf("invalid JSON: %v", err))
	}
	if err := ValidateJob(&job); err != nil {
		return p.reject(path, name, fmt.Sprintf("validation failed: %v", err))
	}

	processing := filepath.Join(p.dirs.ProcessingDir(), job.ID+".json")
	if err := moveFile(path, processing); err != nil {
		return fmt.Errorf("inbox: move to processing: %w", err)
	}

	result := p.evaluate(ctx, &job)
	if err := p.writeResult(result); err != nil {
		return fmt.Errorf("inbox: write result: %w", err)
	}

	archive := p.dirs.DoneDir()
	if result.Status == ResultFailed {
		archive = p.dirs.FailedDir()
	}
	if err := moveFile(processing, filepath.Join(archive, job.ID+".json")); err != nil {
		return fmt.Errorf("inbox: archive job: %w", err)
	}

	p.logger.Info("job processed",
		zap.String("job", job.ID),
		zap.String("status", result.Status),
		zap.String("error_class", result.ErrorClass),
	)
	return nil
}

func (p *Processor) evaluate(ctx context.Context, job *Job) *Result {
	r := &Result{ID: job.ID, SessionID: p.evaluator.Session().ID()}

	var v model.Verdict
	var err error
	switch {
	case job.VerdictOnly:
		var pending *protocol.Pending
		pending, err = p.evaluator.Begin(ctx, job.Event)
		if err == nil {
			pending.Discard()
			v = model.Verdict{Benign: pending.Benign()}
		}
	case job.Combined:
		v, err = p.evaluator.EvaluateCombined(ctx, job.Event)
	default:
		v, err = p.evaluator.Evaluate(ctx, job.Event, nil)
	}

	r.CompletedAt = p.now()
	if err != nil {
		r.Status = ResultFailed
		r.ErrorClass = string(protocol.Classify(err))
		r.Error = err.Error()
		if benign, ok := protocol.VerdictOf(err); ok {
			r.Benign = &benign
		}
		return r
	}
	benign := v.Benign
	r.Status = ResultDone
	r.Benign = &benign
	r.Next = v.Next
	r.Reasons = v.Reasons
	return r
}

// reject archives an unusable job file and writes a failed result.
func (p *Processor) reject(path, id, msg string) error {
	if !validID.MatchString(id) {
		id = fmt.Sprintf("unknown-%d", time.Now().UnixNano())
	}
	if err := moveFile(path, filepath.Join(p.dirs.FailedDir(), id+".json")); err != nil {
		return fmt.Errorf("inbox: archive rejected job: %w", err)
	}
	p.logger.Warn("job rejected", zap.String("job", id), zap.String("reason", msg))
	return p.writeResult(&Result{
		ID:          id,
		Status:      ResultFailed,
		ErrorClass:  string(protocol.ClassConfig),
		Error:       msg,
		CompletedAt: p.now(),
	})
}

// writeResult writes r to the outbox atomically.
func (p *Processor) writeResult(r *Result) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	final := filepath.Join(p.dirs.Outbox, r.ID+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	return os.Rename(tmp, final)
}
