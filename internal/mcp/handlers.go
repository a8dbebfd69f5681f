package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/protocol"
)

// EventInput describes the event to judge.
type EventInput struct {
	UserLocation           string `json:"user_location,omitempty" jsonschema:"current location of the user"`
	UserCommand            string `json:"user_command,omitempty" jsonschema:"the user's direct command, e.g. a voice or app command"`
	SilentTriggeredActions any    `json:"silent_triggered_actions,omitempty" jsonschema:"actions the user configured to fire automatically (motion sensors, timers)"`
	ActualTriggeredActions any    `json:"actual_triggered_actions,omitempty" jsonschema:"actions about to be triggered, not yet known to be correct"`
}

// EvaluateInput is EventInput plus the exchange form.
type EvaluateInput struct {
	UserLocation           string `json:"user_location,omitempty" jsonschema:"current location of the user"`
	UserCommand            string `json:"user_command,omitempty" jsonschema:"the user's direct command, e.g. a voice or app command"`
	SilentTriggeredActions any    `json:"silent_triggered_actions,omitempty" jsonschema:"actions the user configured to fire automatically (motion sensors, timers)"`
	ActualTriggeredActions any    `json:"actual_triggered_actions,omitempty" jsonschema:"actions about to be triggered, not yet known to be correct"`
	Combined               bool   `json:"combined,omitempty" jsonschema:"ask for verdict and list in a single exchange"`
}

func (in EventInput) event() model.Event {
	return model.Event{
		UserLocation:           in.UserLocation,
		UserCommand:            in.UserCommand,
		SilentTriggeredActions: in.SilentTriggeredActions,
		ActualTriggeredActions: in.ActualTriggeredActions,
	}
}

func (in EvaluateInput) event() model.Event {
	return EventInput{
		UserLocation:           in.UserLocation,
		UserCommand:            in.UserCommand,
		SilentTriggeredActions: in.SilentTriggeredActions,
		ActualTriggeredActions: in.ActualTriggeredActions,
	}.event()
}

// EvaluateOutput is the terminal verdict or the failure class. Benign is
// also set when the follow-up failed after the oracle gave a verdict.
type EvaluateOutput struct {
	Benign     *bool                  `json:"benign,omitempty"`
	Next       []model.ActionProposal `json:"next,omitempty"`
	Reasons    []string               `json:"reasons,omitempty"`
	ErrorClass string                 `json:"error_class,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// VerdictOutput is the phase-one verdict only.
type VerdictOutput struct {
	Benign     bool   `json:"benign"`
	ErrorClass string `json:"error_class,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SessionInput is empty; no parameters needed.
type SessionInput struct{}

// SessionOutput describes the live session.
type SessionOutput struct {
	SessionID string `json:"session_id"`
	CreatedAt string `json:"created_at"`
	Turns     int    `json:"turns"`
}

func (s *Server) handleEvaluate(ctx context.Context, _ *mcpsdk.CallToolRequest, in EvaluateInput) (*mcpsdk.CallToolResult, EvaluateOutput, error) {
	var v model.Verdict
	var err error
	if in.Combined {
		v, err = s.evaluator.EvaluateCombined(ctx, in.event())
	} else {
		v, err = s.evaluator.Evaluate(ctx, in.event(), nil)
	}
	if err != nil {
		s.logger.Debug("mcp evaluate failed", zap.Error(err))
		out := EvaluateOutput{
			ErrorClass: string(protocol.Classify(err)),
			Error:      err.Error(),
		}
		if benign, ok := protocol.VerdictOf(err); ok {
			out.Benign = &benign
		}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, EvaluateOutput{Benign: &v.Benign, Next: v.Next, Reasons: v.Reasons}, nil
}

func (s *Server) handleVerdict(ctx context.Context, _ *mcpsdk.CallToolRequest, in EventInput) (*mcpsdk.CallToolResult, VerdictOutput, error) {
	p, err := s.evaluator.Begin(ctx, in.event())
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, VerdictOutput{
			ErrorClass: string(protocol.Classify(err)),
			Error:      err.Error(),
		}, nil
	}
	p.Discard()
	return nil, VerdictOutput{Benign: p.Benign()}, nil
}

func (s *Server) handleSession(_ context.Context, _ *mcpsdk.CallToolRequest, _ SessionInput) (*mcpsdk.CallToolResult, SessionOutput, error) {
	sc := s.evaluator.Session()
	return nil, SessionOutput{
		SessionID: sc.ID(),
		CreatedAt: sc.CreatedAt().Format(time.RFC3339),
		Turns:     sc.Len(),
	}, nil
}
