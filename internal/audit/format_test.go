package audit

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFormatTimeline(t *testing.T) {
	res, err := Replay(writeReplayLog(t), ReplayFilter{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	out := FormatTimeline(res)

	for _, want := range []string{
		"Session: s1 | 2026-03-01 10:00:00–10:04:00 UTC",
		"BENIGN",
		"ANOMALOUS",
		"door unlocked remotely",
		"transport: rate limited",
		"follow-up skipped",
		"Summary: 1 benign, 1 anomalous, 1 verdict-only, 1 error | Proposed actions: 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("timeline missing %q:\n%s", want, out)
		}
	}
}

func TestFormatTimelineEmpty(t *testing.T) {
	out := FormatTimeline(&ReplayResult{SessionID: "s9"})
	if out != "Session: s9 | No entries found.\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFormatJSON(t *testing.T) {
	res, err := Replay(writeReplayLog(t), ReplayFilter{SessionID: "s2"})
	if err != nil {
		t.Fatal(err)
	}
	out, err := FormatJSON(res)
	if err != nil {
		t.Fatal(err)
	}
	var decoded ReplayResult
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Summary.BenignCount != 1 {
		t.Fatalf("benign_count = %d, want 1", decoded.Summary.BenignCount)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("a long location name", 10); got != "a long ..." {
		t.Fatalf("got %q", got)
	}
}

func TestFormatTimelineKeepsVerdictOfFailedFollowUp(t *testing.T) {
	anomalous := false
	res := &ReplayResult{Entries: []Entry{{
		Timestamp:  "2026-03-01T10:00:00.000Z",
		Outcome:    OutcomeError,
		Verdict:    &anomalous,
		ErrorClass: "format",
		Error:      "bad list",
	}}}
	out := FormatTimeline(res)
	if !strings.Contains(out, "anomalous, then format: bad list") {
		t.Errorf("timeline hides the verdict:\n%s", out)
	}
}
