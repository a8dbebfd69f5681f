package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a text timeline.
func FormatTimeline(result *ReplayResult) string {
	label := result.SessionID
	if label == "" {
		label = "all sessions"
	}
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Session: %s | No entries found.\n", label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s | %s–%s UTC\n", label,
		reformat(result.Summary.FirstTimestamp, "2006-01-02 15:04:05"),
		reformat(result.Summary.LastTimestamp, "15:04:05"))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		detail := fmt.Sprintf("%d proposals", e.Proposals)
		switch {
		case e.Outcome == OutcomeError:
			detail = e.ErrorClass + ": " + e.Error
			if e.Verdict != nil && !*e.Verdict {
				detail = "anomalous, then " + detail
			}
		case len(e.Reasons) > 0:
			detail = e.Reasons[0]
		case e.Outcome == OutcomeVerdictBenign || e.Outcome == OutcomeVerdictAnomalous:
			detail = "follow-up skipped"
		}
		fmt.Fprintf(&b, "%-10s %-18s %-14s %-40s\n",
			reformat(e.Timestamp, "15:04:05"),
			strings.ToUpper(e.Outcome),
			truncate(e.Event.UserLocation, 14),
			truncate(detail, 40))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("audit: marshal replay result: %w", err)
	}
	return string(data), nil
}

func reformat(ts, layout string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format(layout)
}

func formatSummary(s ReplaySummary) string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.BenignCount, "benign")
	add(s.AnomalousCount, "anomalous")
	add(s.VerdictOnly, "verdict-only")
	add(s.ErrorCount, "error")
	return fmt.Sprintf("Summary: %s | Proposed actions: %d\n", strings.Join(parts, ", "), s.Proposals)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
