package session

import (
	"context"
	"fmt"

	"github.com/ppiankov/sitaware/internal/facts"
	"github.com/ppiankov/sitaware/internal/model"
)

// SystemPrompt declares the oracle's role in the first turn of every session.
const SystemPrompt = "You oversee IoT devices."

// primingTemplate embeds the static environment facts verbatim.
const primingTemplate = `User is authorized to control everything
IoT_device_location: %s
room_setup: %s
NO NEED FOR RESPONSE`

// BootstrapTurns is the number of turns a freshly initialized context holds:
// the system turn plus the priming exchange.
const BootstrapTurns = 3

// Completer sends one query against a context and appends the exchange.
type Completer interface {
	Complete(ctx context.Context, sc *Context, text string) (string, error)
}

// PrimingQuery renders the priming turn for the given facts.
func PrimingQuery(f *facts.Facts) (string, error) {
	devices, rooms, err := f.Render()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(primingTemplate, devices, rooms), nil
}

// Initialize creates a context primed with environment knowledge: a system
// turn declaring the oracle's role, then one exchange carrying the facts.
// Facts that cannot be rendered fail before any oracle call; oracle failures
// are returned unchanged.
func Initialize(ctx context.Context, c Completer, f *facts.Facts) (*Context, error) {
	query, err := PrimingQuery(f)
	if err != nil {
		return nil, err
	}
	sc := New()
	sc.Append(model.Turn{Role: model.RoleSystem, Text: SystemPrompt})
	if _, err := c.Complete(ctx, sc, query); err != nil {
		return nil, err
	}
	return sc, nil
}
