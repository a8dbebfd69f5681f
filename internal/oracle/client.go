// Package oracle sends session context to a reasoning oracle and returns
// its reply. A Client appends exactly two turns per successful exchange
// (the query and the reply) and none on failure. Replies are returned
// verbatim; interpreting them is the caller's job.
package oracle

import (
	"context"
	"fmt"

	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/session"
)

// Client is a conversational completion endpoint.
type Client interface {
	Complete(ctx context.Context, sc *session.Context, text string) (string, error)
}

// sendFunc performs one round trip for the given outgoing view.
type sendFunc func(ctx context.Context, turns []model.Turn) (string, error)

// exchange runs one query against sc. The query and reply are built on a
// fork and committed together, so a failed send leaves sc untouched.
func exchange(ctx context.Context, sc *session.Context, text string, trim session.Trimmer, send sendFunc) (string, error) {
	if sc == nil {
		return "", fmt.Errorf("oracle: nil session context")
	}
	if trim == nil {
		trim = session.KeepAll{}
	}
	work := sc.Fork()
	work.Append(model.Turn{Role: model.RoleUser, Text: text})

	reply, err := send(ctx, trim.Window(work.Turns()))
	if err != nil {
		return "", err
	}

	work.Append(model.Turn{Role: model.RoleAssistant, Text: reply})
	if err := sc.Commit(work); err != nil {
		return "", fmt.Errorf("oracle: commit exchange: %w", err)
	}
	return reply, nil
}
