package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ReplayFilter selects entries for replay. Zero values do not filter.
type ReplayFilter struct {
	SessionID string
	From      time.Time
	To        time.Time
}

// ReplaySummary counts outcomes across the selected entries.
type ReplaySummary struct {
	Total          int    `json:"total"`
	BenignCount    int    `json:"benign_count"`
	AnomalousCount int    `json:"anomalous_count"`
	VerdictOnly    int    `json:"verdict_only_count"`
	ErrorCount     int    `json:"error_count"`
	Proposals      int    `json:"proposals"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
}

// ReplayResult holds the selected entries and their summary.
type ReplayResult struct {
	SessionID string        `json:"session_id,omitempty"`
	Entries   []Entry       `json:"entries"`
	Summary   ReplaySummary `json:"summary"`
}

// Replay reads the log and returns the entries matching filter.
// Malformed lines are skipped; use Verify to detect them.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{SessionID: filter.SessionID, Entries: []Entry{}}
	scanner := newScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !filter.match(entry) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		result.Summary.add(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read log: %w", err)
	}
	return result, nil
}

func (f ReplayFilter) match(e Entry) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func (s *ReplaySummary) add(e Entry) {
	s.Total++
	switch e.Outcome {
	case OutcomeBenign:
		s.BenignCount++
	case OutcomeAnomalous:
		s.AnomalousCount++
	case OutcomeVerdictBenign, OutcomeVerdictAnomalous:
		s.VerdictOnly++
	case OutcomeError:
		s.ErrorCount++
	}
	s.Proposals += e.Proposals
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}
