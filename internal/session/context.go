// Package session holds the conversational memory of one authorization run.
//
// A Context is strictly append-only: turns are never removed or reordered,
// and every successful oracle exchange adds exactly two turns (the query and
// the reply). A Context is owned by one session at a time; concurrent writers
// are detected on Commit and rejected.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/sitaware/internal/model"
)

// ErrConcurrentWrite is returned by Commit when the context grew after the
// working copy was forked.
var ErrConcurrentWrite = errors.New("session: context modified by another writer")

// Context is the ordered turn history of one session.
type Context struct {
	mu        sync.RWMutex
	id        string
	createdAt time.Time
	turns     []model.Turn

	// base is the parent length at fork time; -1 for a root context.
	base int
}

// New creates an empty root context with a fresh session ID.
func New() *Context {
	return &Context{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		base:      -1,
	}
}

// Restore rebuilds a context from a persisted transcript.
func Restore(t Transcript) (*Context, error) {
	for i, turn := range t.Turns {
		if !turn.Role.Valid() {
			return nil, fmt.Errorf("session: turn %d has invalid role %q", i, turn.Role)
		}
	}
	id := t.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	turns := make([]model.Turn, len(t.Turns))
	copy(turns, t.Turns)
	return &Context{id: id, createdAt: t.CreatedAt, turns: turns, base: -1}, nil
}

// ID returns the session identifier.
func (c *Context) ID() string { return c.id }

// CreatedAt returns when the session started.
func (c *Context) CreatedAt() time.Time { return c.createdAt }

// Len returns the number of turns.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Turns returns a copy of the turn history in insertion order.
func (c *Context) Turns() []model.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Last returns the most recent turn.
func (c *Context) Last() (model.Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.turns) == 0 {
		return model.Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// Append adds turns to the end of the history.
func (c *Context) Append(turns ...model.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turns...)
}

// Fork returns a working copy that can be extended without touching c.
func (c *Context) Fork() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	turns := make([]model.Turn, len(c.turns))
	copy(turns, c.turns)
	return &Context{id: c.id, createdAt: c.createdAt, turns: turns, base: len(c.turns)}
}

// Commit adopts the turns a working copy appended since it was forked.
func (c *Context) Commit(work *Context) error {
	if work.id != c.id || work.base < 0 {
		return fmt.Errorf("session: commit of a context not forked from %s", c.id)
	}
	added := work.Turns()[work.base:]

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.turns) != work.base {
		return ErrConcurrentWrite
	}
	c.turns = append(c.turns, added...)
	return nil
}
