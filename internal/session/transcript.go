package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/sitaware/internal/model"
)

// Transcript is a point-in-time copy of a context.
type Transcript struct {
	SessionID string       `json:"session_id"`
	CreatedAt time.Time    `json:"created_at"`
	Turns     []model.Turn `json:"turns"`
}

// Snapshot copies the current history.
func (c *Context) Snapshot() Transcript {
	return Transcript{SessionID: c.id, CreatedAt: c.createdAt, Turns: c.Turns()}
}

// WriteJSON dumps the turn history to path as an indented array of
// {"role", "content"} objects. The file is replaced atomically.
func WriteJSON(path string, c *Context) error {
	data, err := json.MarshalIndent(c.Turns(), "", "    ")
	if err != nil {
		return fmt.Errorf("session: marshal transcript: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("session: create transcript dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("session: write transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("session: rename transcript: %w", err)
	}
	return nil
}

// ReadJSON loads a transcript written by WriteJSON. The session ID is not
// part of the file, so the restored context gets a fresh one.
func ReadJSON(path string) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read transcript: %w", err)
	}
	var turns []model.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("session: parse transcript: %w", err)
	}
	return Restore(Transcript{CreatedAt: time.Now().UTC(), Turns: turns})
}
