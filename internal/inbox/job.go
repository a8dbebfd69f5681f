// Package inbox evaluates events dropped as JSON files into a directory.
// Files are processed one at a time because every evaluation appends to the
// same session; results are written to the outbox.
package inbox

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/sitaware/internal/model"
)

// validID matches alphanumeric characters, dashes, and underscores only.
var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Job is one event awaiting evaluation.
type Job struct {
	ID          string      `json:"id"`
	Event       model.Event `json:"event"`
	VerdictOnly bool        `json:"verdict_only,omitempty"`
	Combined    bool        `json:"combined,omitempty"`
	Source      string      `json:"source,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Result is written to the outbox after a job finishes.
type Result struct {
	ID          string                 `json:"id"`
	SessionID   string                 `json:"session_id,omitempty"`
	Status      string                 `json:"status"`
	Benign      *bool                  `json:"benign,omitempty"`
	Next        []model.ActionProposal `json:"next,omitempty"`
	Reasons     []string               `json:"reasons,omitempty"`
	ErrorClass  string                 `json:"error_class,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CompletedAt time.Time              `json:"completed_at"`
}

// Result status values.
const (
	ResultDone   = "done"
	ResultFailed = "failed"
)

// ValidateJob checks that a job has a safe ID and a coherent mode.
func ValidateJob(j *Job) error {
	switch {
	case j.ID == "":
		return errors.New("job ID is required")
	case strings.Contains(j.ID, ".."):
		return errors.New("job ID must not contain '..'")
	case !validID.MatchString(j.ID):
		return errors.New("job ID contains invalid characters: only alphanumeric, dash, and underscore allowed")
	case j.VerdictOnly && j.Combined:
		return fmt.Errorf("job %s: verdict_only and combined are mutually exclusive", j.ID)
	}
	return nil
}
