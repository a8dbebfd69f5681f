package mcp

import (
	"context"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/oracle"
	"github.com/ppiankov/sitaware/internal/protocol"
	"github.com/ppiankov/sitaware/internal/session"
)

func newTestServer(t *testing.T, replies ...string) *Server {
	t.Helper()
	sc := session.New()
	sc.Append(
		model.Turn{Role: model.RoleSystem, Text: session.SystemPrompt},
		model.Turn{Role: model.RoleUser, Text: "facts"},
		model.Turn{Role: model.RoleAssistant, Text: "ok"},
	)
	s, err := New(protocol.New(oracle.NewScripted(replies...), sc), "test", nil)
	if err != nil {
		t.Fatalf("failed to create MCP server: %v", err)
	}
	return s
}

func TestEvaluateBenign(t *testing.T) {
	s := newTestServer(t, "True", `[{"location": "kitchen", "device": "fan", "action": "on"}]`)

	result, out, err := s.handleEvaluate(context.Background(), &mcpsdk.CallToolRequest{}, EvaluateInput{
		UserLocation: "kitchen",
		UserCommand:  "turn on the stove",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("expected success, got error result: %s", out.Error)
	}
	if out.Benign == nil || !*out.Benign || len(out.Next) != 1 || out.Next[0].Device != "fan" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestEvaluateAnomalous(t *testing.T) {
	s := newTestServer(t, "False", `["front door unlocked while user is asleep"]`)

	_, out, err := s.handleEvaluate(context.Background(), &mcpsdk.CallToolRequest{}, EvaluateInput{
		UserLocation:           "bedroom",
		ActualTriggeredActions: "unlock front door",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Benign == nil || *out.Benign || len(out.Reasons) != 1 {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestEvaluateCombined(t *testing.T) {
	s := newTestServer(t, `False, ["spoofed motion sensor"]`)
	_, out, err := s.handleEvaluate(context.Background(), &mcpsdk.CallToolRequest{}, EvaluateInput{Combined: true})
	if err != nil {
		t.Fatal(err)
	}
	if out.Benign == nil || *out.Benign || out.Reasons[0] != "spoofed motion sensor" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestEvaluateFormatViolationIsToolError(t *testing.T) {
	s := newTestServer(t, "I think so")
	result, out, err := s.handleEvaluate(context.Background(), &mcpsdk.CallToolRequest{}, EvaluateInput{})
	if err != nil {
		t.Fatal(err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected error result")
	}
	if out.ErrorClass != "format" {
		t.Fatalf("error_class = %q, want format", out.ErrorClass)
	}
	if out.Benign != nil {
		t.Fatalf("benign = %v, want unset before any verdict", *out.Benign)
	}
}

func TestEvaluateFollowUpFailureKeepsVerdict(t *testing.T) {
	s := newTestServer(t, "False", "the door should stay locked")
	result, out, err := s.handleEvaluate(context.Background(), &mcpsdk.CallToolRequest{}, EvaluateInput{
		UserLocation:           "bedroom",
		ActualTriggeredActions: "unlock front door",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result == nil || !result.IsError || out.ErrorClass != "format" {
		t.Fatalf("expected format error result, got %+v", out)
	}
	if out.Benign == nil || *out.Benign {
		t.Fatalf("expected anomalous verdict alongside the error, got %+v", out)
	}
}

func TestVerdictOnly(t *testing.T) {
	s := newTestServer(t, "True")
	_, out, err := s.handleVerdict(context.Background(), &mcpsdk.CallToolRequest{}, EventInput{UserLocation: "kitchen"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Benign {
		t.Fatal("expected benign verdict")
	}

	// session released for the next call
	_, sess, _ := s.handleSession(context.Background(), &mcpsdk.CallToolRequest{}, SessionInput{})
	if sess.Turns != session.BootstrapTurns+2 {
		t.Fatalf("turns = %d, want %d", sess.Turns, session.BootstrapTurns+2)
	}
}

func TestVerdictTransportError(t *testing.T) {
	s := newTestServer(t)
	result, out, err := s.handleVerdict(context.Background(), &mcpsdk.CallToolRequest{}, EventInput{})
	if err != nil {
		t.Fatal(err)
	}
	if result == nil || !result.IsError || out.ErrorClass != "transport" {
		t.Fatalf("expected transport error result, got %+v", out)
	}
}

func TestSessionDescribesContext(t *testing.T) {
	s := newTestServer(t)
	_, out, err := s.handleSession(context.Background(), &mcpsdk.CallToolRequest{}, SessionInput{})
	if err != nil {
		t.Fatal(err)
	}
	if out.SessionID != s.evaluator.Session().ID() || out.Turns != session.BootstrapTurns {
		t.Fatalf("unexpected session output: %+v", out)
	}
}

func TestNewRequiresEvaluator(t *testing.T) {
	if _, err := New(nil, "test", nil); err == nil {
		t.Fatal("expected error")
	}
}
