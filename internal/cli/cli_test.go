package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/ppiankov/sitaware/internal/alert"
	"github.com/ppiankov/sitaware/internal/audit"
	"github.com/ppiankov/sitaware/internal/config"
	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/oracle"
	"github.com/ppiankov/sitaware/internal/protocol"
	"github.com/ppiankov/sitaware/internal/session"
	"github.com/ppiankov/sitaware/internal/store"
	"github.com/ppiankov/sitaware/internal/verdict"
)

// replyQueue serves chat completions from a fixed list of replies.
func replyQueue(t *testing.T, replies ...string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			http.Error(w, `{"error": {"message": "no replies left"}}`, http.StatusServiceUnavailable)
			return
		}
		content := replies[0]
		replies = replies[1:]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	devices := filepath.Join(dir, "IoT_device_location.json")
	rooms := filepath.Join(dir, "room_setup.json")
	if err := os.WriteFile(devices, []byte(exampleDevices), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(rooms, []byte(exampleRooms), 0o644); err != nil {
		t.Fatal(err)
	}

	c := config.Default()
	c.Oracle.BaseURL = url
	c.Oracle.APIKey = "test"
	c.Facts.Devices = devices
	c.Facts.Rooms = rooms
	c.Session.TranscriptPath = filepath.Join(dir, "prev_messages.json")
	c.Audit.Path = filepath.Join(dir, "audit.jsonl")
	c.Store.Path = filepath.Join(dir, "sessions.db")
	return c
}

func testEvaluator(replies ...string) *protocol.Evaluator {
	sc := session.New()
	sc.Append(
		model.Turn{Role: model.RoleSystem, Text: session.SystemPrompt},
		model.Turn{Role: model.RoleUser, Text: "facts"},
		model.Turn{Role: model.RoleAssistant, Text: "OK"},
	)
	return protocol.New(oracle.NewScripted(replies...), sc)
}

func TestExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{&oracle.TransportError{Op: "x", Kind: oracle.KindNetwork, Err: errors.New("refused")}, exitUnavail},
		{&verdict.FormatViolation{Shape: model.ShapeBoolean, Reason: "x"}, exitDataErr},
		{&model.ConfigError{Field: "oracle.model", Err: errors.New("required")}, exitConfig},
		{&exitError{code: 3, msg: "x"}, 3},
		{errors.New("boom"), exitFailure},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestInteractiveLoop(t *testing.T) {
	e := testEvaluator("True", `[{"location": "kitchen", "device": "fan", "action": "on"}]`)
	in := strings.NewReader("\nkitchen\nturn on the stove\n\n\ny\n")
	var out bytes.Buffer

	if err := interactive(context.Background(), e, in, &out); err != nil {
		t.Fatal(err)
	}

	s := out.String()
	for _, want := range []string{
		"Stop?user_location: user_command: ",
		"is_correct: True\n",
		`content: [{"location":"kitchen","device":"fan","action":"on"}]`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
	if n := strings.Count(s, "Time taken: "); n != 2 {
		t.Errorf("Time taken printed %d times, want 2", n)
	}
	if got := e.Session().Len(); got != session.BootstrapTurns+4 {
		t.Errorf("turns = %d, want %d", got, session.BootstrapTurns+4)
	}
}

func TestInteractiveLoopReportsErrorsAndContinues(t *testing.T) {
	e := testEvaluator("Perhaps", "False", `["door opened while user away"]`)
	in := strings.NewReader("n\nhall\n\n\n\nn\nhall\n\n\nunlock door\n")
	var out bytes.Buffer

	if err := interactive(context.Background(), e, in, &out); err != nil {
		t.Fatal(err)
	}

	s := out.String()
	for _, want := range []string{"error (format):", "is_correct: False", `content: ["door opened while user away"]`} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestReadEvent(t *testing.T) {
	ev, err := readEvent(strings.NewReader(`{"user_location": "bedroom", "actual_triggered_actions": ["unlock front door"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.UserLocation != "bedroom" {
		t.Errorf("user_location = %q", ev.UserLocation)
	}
	if !reflect.DeepEqual(ev.ActualTriggeredActions, []any{"unlock front door"}) {
		t.Errorf("actual_triggered_actions = %#v", ev.ActualTriggeredActions)
	}
	if ev.SilentTriggeredActions != nil {
		t.Errorf("silent_triggered_actions = %#v, want nil", ev.SilentTriggeredActions)
	}

	_, err = readEvent(strings.NewReader(`{"location": "bedroom"}`))
	var cfgErr *model.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "event" {
		t.Fatalf("expected ConfigError on field event, got %v", err)
	}
}

func TestWriteEvalResult(t *testing.T) {
	cases := []struct {
		name string
		res  evalResult
		want string
	}{
		{"benign", evalResult{Benign: true}, "is_correct: True\ncontent: []\n"},
		{"verdict only", evalResult{Benign: false, VerdictOnly: true}, "is_correct: False\n"},
		{"failed follow-up", evalResult{ErrorClass: "transport", Error: "oracle down"}, "is_correct: False\nerror (transport): oracle down\n"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		if err := writeEvalResult(&buf, tc.res, "text"); err != nil {
			t.Fatal(err)
		}
		if buf.String() != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, buf.String(), tc.want)
		}
	}

	var buf bytes.Buffer
	if err := writeEvalResult(&buf, evalResult{SessionID: "s1", Reasons: []string{"r"}}, "json"); err != nil {
		t.Fatal(err)
	}
	var got evalResult
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Reasons) != 1 || got.Reasons[0] != "r" {
		t.Errorf("reasons = %v", got.Reasons)
	}
}

func TestRuntimeEvaluatesAndPersists(t *testing.T) {
	srv := replyQueue(t, "OK", "False", `["front door unlocked while user is asleep"]`)
	c := testConfig(t, srv.URL)
	ctx := context.Background()

	rt, err := newRuntime(ctx, c, zap.NewNop(), "")
	if err != nil {
		t.Fatal(err)
	}
	if rt.session.Len() != session.BootstrapTurns {
		t.Fatalf("turns after bootstrap = %d", rt.session.Len())
	}

	res, err := evaluateOnce(ctx, rt.evaluator, model.Event{UserLocation: "bedroom", ActualTriggeredActions: "unlock front door"}, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Benign || len(res.Reasons) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	id := rt.session.ID()
	if err := rt.Close(ctx); err != nil {
		t.Fatal(err)
	}

	restored, err := session.ReadJSON(c.Session.TranscriptPath)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Len() != session.BootstrapTurns+4 {
		t.Errorf("transcript turns = %d, want %d", restored.Len(), session.BootstrapTurns+4)
	}

	st, err := store.Open(c.Store.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	rec, err := st.LoadTranscript(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Turns) != session.BootstrapTurns+4 {
		t.Errorf("stored turns = %d, want %d", len(rec.Turns), session.BootstrapTurns+4)
	}

	v := audit.Verify(c.Audit.Path)
	if !v.Valid || v.Lines != 1 {
		t.Errorf("audit verify: valid=%v lines=%d error=%s", v.Valid, v.Lines, v.Error)
	}
}

func TestFailedFollowUpStillReportsVerdict(t *testing.T) {
	// the queue runs dry after phase one, so the follow-up fails in transport
	srv := replyQueue(t, "OK", "False")
	c := testConfig(t, srv.URL)
	ctx := context.Background()

	rt, err := newRuntime(ctx, c, zap.NewNop(), "")
	if err != nil {
		t.Fatal(err)
	}
	res, err := evaluateOnce(ctx, rt.evaluator, model.Event{ActualTriggeredActions: "unlock front door"}, false, false)
	if exitCode(err) != exitUnavail {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if res.Benign || res.ErrorClass != "transport" || res.Error == "" {
		t.Errorf("unexpected result: %+v", res)
	}
	if err := rt.Close(ctx); err != nil {
		t.Fatal(err)
	}

	result, err := audit.Replay(c.Audit.Path, audit.ReplayFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(result.Entries))
	}
	entry := result.Entries[0]
	if entry.Outcome != audit.OutcomeError || entry.Verdict == nil || *entry.Verdict {
		t.Errorf("entry does not carry the anomalous verdict: %+v", entry)
	}
}

func TestRuntimeResume(t *testing.T) {
	srv := replyQueue(t, "OK", "True")
	c := testConfig(t, srv.URL)
	ctx := context.Background()

	rt, err := newRuntime(ctx, c, zap.NewNop(), "")
	if err != nil {
		t.Fatal(err)
	}
	id := rt.session.ID()
	if err := rt.Close(ctx); err != nil {
		t.Fatal(err)
	}

	rt, err = newRuntime(ctx, c, zap.NewNop(), id)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)
	if rt.session.ID() != id {
		t.Fatalf("resumed session %s, want %s", rt.session.ID(), id)
	}

	res, err := evaluateOnce(ctx, rt.evaluator, model.Event{UserLocation: "kitchen"}, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Benign {
		t.Error("expected benign verdict")
	}
	if rt.session.Len() != session.BootstrapTurns+2 {
		t.Errorf("turns = %d, want %d", rt.session.Len(), session.BootstrapTurns+2)
	}
}

func TestRuntimeResumeRejectsChangedFacts(t *testing.T) {
	srv := replyQueue(t, "OK")
	c := testConfig(t, srv.URL)
	ctx := context.Background()

	rt, err := newRuntime(ctx, c, zap.NewNop(), "")
	if err != nil {
		t.Fatal(err)
	}
	id := rt.session.ID()
	if err := rt.Close(ctx); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(c.Facts.Devices, []byte(`{"garage": ["door"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = newRuntime(ctx, c, zap.NewNop(), id)
	var cfgErr *model.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "facts" {
		t.Fatalf("expected ConfigError on field facts, got %v", err)
	}
	if exitCode(err) != exitConfig {
		t.Errorf("exit code = %d, want %d", exitCode(err), exitConfig)
	}
}

func TestRuntimeBootstrapFailureIsTransport(t *testing.T) {
	srv := replyQueue(t)
	c := testConfig(t, srv.URL)

	_, err := newRuntime(context.Background(), c, zap.NewNop(), "")
	if err == nil {
		t.Fatal("expected bootstrap failure")
	}
	if exitCode(err) != exitUnavail {
		t.Errorf("exit code = %d, want %d", exitCode(err), exitUnavail)
	}
}

func TestRuntimeMissingFactsIsConfig(t *testing.T) {
	c := testConfig(t, "http://127.0.0.1:1")
	c.Facts.Devices = filepath.Join(t.TempDir(), "absent.json")

	_, err := newRuntime(context.Background(), c, zap.NewNop(), "")
	if exitCode(err) != exitConfig {
		t.Errorf("exit code = %d, want %d (%v)", exitCode(err), exitConfig, err)
	}
}

func TestVersionCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"name": "sitaware"`) {
		t.Errorf("unexpected version output: %s", out.String())
	}
}

func TestCheckCommandFailsOnMismatch(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "kitchen.yaml")
	err := os.WriteFile(path, []byte(`
name: kitchen
facts:
  devices: {kitchen: [fan]}
  rooms: {kitchen: {}}
cases:
  - name: stove
    replies: ["True", "[]"]
    expect: anomalous
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"check", "--scenario", filepath.Join(dir, "*.yaml")})
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })

	err = rootCmd.ExecuteContext(context.Background())
	if err == nil {
		t.Fatal("expected check failure")
	}
	if exitCode(err) != exitFailure {
		t.Errorf("exit code = %d, want %d", exitCode(err), exitFailure)
	}
	if !strings.Contains(out.String(), "expected anomalous, got benign") {
		t.Errorf("unexpected report:\n%s", out.String())
	}
}

func TestInitWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	initDir, initForce = dir, false
	t.Cleanup(func() { initDir = "" })

	var out bytes.Buffer
	initCmd.SetOut(&out)
	if err := runInit(initCmd, nil); err != nil {
		t.Fatal(err)
	}

	c, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "IoT_device_location.json"); c.Facts.Devices != want {
		t.Errorf("facts.devices = %q, want %q", c.Facts.Devices, want)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("generated config invalid: %v", err)
	}

	out.Reset()
	if err := runInit(initCmd, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "All files already exist") {
		t.Errorf("unexpected second run output: %s", out.String())
	}
}

func TestRuntimeAlertsOnAnomalous(t *testing.T) {
	var hits []string
	var mu sync.Mutex
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		hits = append(hits, body["outcome"].(string))
		mu.Unlock()
	}))
	defer hook.Close()

	srv := replyQueue(t, "OK", "False", `["garage opened remotely"]`, "True", "[]")
	c := testConfig(t, srv.URL)
	c.Alerts = []alert.Config{{URL: hook.URL, Events: []string{audit.OutcomeAnomalous}}}
	ctx := context.Background()

	rt, err := newRuntime(ctx, c, zap.NewNop(), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := evaluateOnce(ctx, rt.evaluator, model.Event{ActualTriggeredActions: "open garage"}, false, false); err != nil {
		t.Fatal(err)
	}
	if _, err := evaluateOnce(ctx, rt.evaluator, model.Event{UserCommand: "lights on"}, false, false); err != nil {
		t.Fatal(err)
	}
	if err := rt.Close(ctx); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(hits, []string{audit.OutcomeAnomalous}) {
		t.Errorf("alerts = %v, want [%s]", hits, audit.OutcomeAnomalous)
	}
}
