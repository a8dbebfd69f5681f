package oracle

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/session"
)

// ErrScriptExhausted is the cause of the TransportError returned once every
// scripted reply has been used.
var ErrScriptExhausted = errors.New("scripted oracle has no replies left")

// Reply is one scripted answer. A non-nil Err fails the exchange instead.
type Reply struct {
	Text string
	Err  error
}

// Scripted replays a fixed sequence of replies. It records the outgoing
// view of every request so tests can inspect what the oracle saw.
type Scripted struct {
	mu       sync.Mutex
	replies  []Reply
	requests [][]model.Turn
	trimmer  session.Trimmer
}

// NewScripted creates an oracle answering with texts in order.
func NewScripted(texts ...string) *Scripted {
	s := &Scripted{}
	for _, t := range texts {
		s.replies = append(s.replies, Reply{Text: t})
	}
	return s
}

// NewScriptedReplies creates an oracle from replies that may include errors.
func NewScriptedReplies(replies ...Reply) *Scripted {
	return &Scripted{replies: append([]Reply(nil), replies...)}
}

// SetTrimmer applies t to the outgoing view.
func (s *Scripted) SetTrimmer(t session.Trimmer) { s.trimmer = t }

// Push appends more replies to the script.
func (s *Scripted) Push(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Remaining returns the number of unused replies.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}

// Requests returns the outgoing turn sequence of every request so far.
func (s *Scripted) Requests() [][]model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]model.Turn, len(s.requests))
	copy(out, s.requests)
	return out
}

// Complete answers with the next scripted reply.
func (s *Scripted) Complete(ctx context.Context, sc *session.Context, text string) (string, error) {
	return exchange(ctx, sc, text, s.trimmer, s.send)
}

func (s *Scripted) send(ctx context.Context, turns []model.Turn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", classify("scripted", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, turns)
	if len(s.replies) == 0 {
		return "", &TransportError{Op: "scripted", Kind: KindService, Err: ErrScriptExhausted}
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	if next.Err != nil {
		return "", classify("scripted", next.Err)
	}
	return next.Text, nil
}
