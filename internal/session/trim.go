package session

import (
	"fmt"

	"github.com/ppiankov/sitaware/internal/model"
)

// Trim strategy names accepted by NewTrimmer.
const (
	TrimKeepAll    = "keep_all"
	TrimKeepRecent = "keep_recent"
)

// Trimmer selects the turns sent to the oracle. It only shapes the outgoing
// view; the stored context is never shortened.
type Trimmer interface {
	Window(turns []model.Turn) []model.Turn
}

// KeepAll sends the full history.
type KeepAll struct{}

// Window returns turns unchanged.
func (KeepAll) Window(turns []model.Turn) []model.Turn { return turns }

// KeepRecent sends the bootstrap prefix plus the most recent exchanges.
// A trailing unanswered query is always kept.
type KeepRecent struct {
	MaxExchanges int
}

// Window keeps turns[:BootstrapTurns] and the last MaxExchanges exchanges.
func (k KeepRecent) Window(turns []model.Turn) []model.Turn {
	if len(turns) <= BootstrapTurns || k.MaxExchanges < 0 {
		return turns
	}
	rest := turns[BootstrapTurns:]
	keep := 2*k.MaxExchanges + len(rest)%2
	if keep >= len(rest) {
		return turns
	}
	out := make([]model.Turn, 0, BootstrapTurns+keep)
	out = append(out, turns[:BootstrapTurns]...)
	return append(out, rest[len(rest)-keep:]...)
}

// NewTrimmer builds a trimmer from its configuration name.
func NewTrimmer(strategy string, maxExchanges int) (Trimmer, error) {
	switch strategy {
	case "", TrimKeepAll:
		return KeepAll{}, nil
	case TrimKeepRecent:
		if maxExchanges < 1 {
			return nil, &model.ConfigError{Field: "session.max_exchanges", Err: fmt.Errorf("must be at least 1, got %d", maxExchanges)}
		}
		return KeepRecent{MaxExchanges: maxExchanges}, nil
	default:
		return nil, &model.ConfigError{Field: "session.trim", Err: fmt.Errorf("unknown strategy %q", strategy)}
	}
}
