package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	return l, path
}

func testEntry(outcome string) Entry {
	return Entry{
		Timestamp: time.Now().UTC().Format(TimestampFormat),
		SessionID: "s-test",
		Event: Event{
			UserLocation:  "kitchen",
			UserCommand:   "turn on the light",
			SilentActions: "None",
			ActualActions: `[{"device":"light","action":"on"}]`,
		},
		Phase:      "follow_up",
		Outcome:    outcome,
		ContextLen: 7,
		FactsHash:  "sha256:abc123",
	}
}

func recordN(t *testing.T, l *Log, n int, outcome string) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := l.Record(testEntry(outcome)); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
}

func TestSequentialWritesProduceValidChain(t *testing.T) {
	l, path := newTestLog(t)
	recordN(t, l, 5, OutcomeBenign)
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
}

func TestFirstEntryReferencesGenesis(t *testing.T) {
	l, path := newTestLog(t)
	recordN(t, l, 1, OutcomeAnomalous)
	l.Close()

	data, _ := os.ReadFile(path)
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.PrevHash != GenesisHash {
		t.Fatalf("prev_hash = %q, want genesis", e.PrevHash)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	l, path := newTestLog(t)
	recordN(t, l, 3, OutcomeBenign)
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[1] = strings.Replace(lines[1], `"benign"`, `"anomalous"`, 1)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if result.ErrorLine != 3 {
		t.Fatalf("expected error at line 3, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	l, path := newTestLog(t)
	recordN(t, l, 3, OutcomeBenign)
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	kept := []string{lines[0], lines[2]}
	if err := os.WriteFile(path, []byte(strings.Join(kept, "\n")+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	result := Verify(path)
	if result.Valid || result.ErrorLine != 2 {
		t.Fatalf("expected break at line 2, got %+v", result)
	}
}

func TestVerifyDetectsGarbage(t *testing.T) {
	l, path := newTestLog(t)
	recordN(t, l, 1, OutcomeBenign)
	l.Close()

	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	f.WriteString("not json\n")
	f.Close()

	result := Verify(path)
	if result.Valid || result.ErrorLine != 2 {
		t.Fatalf("expected parse error at line 2, got %+v", result)
	}
}

func TestVerifyMissingFile(t *testing.T) {
	result := Verify(filepath.Join(t.TempDir(), "absent.jsonl"))
	if result.Valid || result.Error == "" {
		t.Fatalf("expected open error, got %+v", result)
	}
}

func TestReopenContinuesChain(t *testing.T) {
	l, path := newTestLog(t)
	recordN(t, l, 2, OutcomeBenign)
	l.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	recordN(t, l2, 2, OutcomeError)
	l2.Close()

	result := Verify(path)
	if !result.Valid || result.Lines != 4 {
		t.Fatalf("expected valid 4-line chain, got %+v", result)
	}
}

func TestConcurrentRecordsKeepChainValid(t *testing.T) {
	l, path := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := l.Record(testEntry(OutcomeBenign)); err != nil {
					t.Errorf("record: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	l.Close()

	result := Verify(path)
	if !result.Valid || result.Lines != 100 {
		t.Fatalf("expected valid 100-line chain, got %+v", result)
	}
}

func TestRecordFillsTimestamp(t *testing.T) {
	l, path := newTestLog(t)
	e := testEntry(OutcomeBenign)
	e.Timestamp = ""
	if err := l.Record(e); err != nil {
		t.Fatal(err)
	}
	l.Close()

	res, err := Replay(path, ReplayFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := time.Parse(TimestampFormat, res.Entries[0].Timestamp); err != nil {
		t.Fatalf("timestamp not set: %v", err)
	}
}
