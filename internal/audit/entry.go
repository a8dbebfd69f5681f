package audit

// Outcomes recorded in Entry.Outcome.
const (
	OutcomeBenign           = "benign"
	OutcomeAnomalous        = "anomalous"
	OutcomeVerdictBenign    = "verdict_benign"
	OutcomeVerdictAnomalous = "verdict_anomalous"
	OutcomeError            = "error"
)

// Event is the flattened observation recorded in each entry. Action fields
// hold their query rendering so the entry stays a plain struct.
type Event struct {
	UserLocation  string `json:"user_location"`
	UserCommand   string `json:"user_command"`
	SilentActions string `json:"silent_actions"`
	ActualActions string `json:"actual_actions"`
}

// Entry is one line in the hash-chained JSONL audit log. Verdict is the
// phase-one Boolean whenever the oracle gave one, including when the
// follow-up failed afterwards.
// All fields are structs or slices of plain values (no map[string]any) to
// guarantee deterministic json.Marshal output for reproducible hashing.
type Entry struct {
	Timestamp  string   `json:"ts"`
	SessionID  string   `json:"session_id"`
	Event      Event    `json:"event"`
	Phase      string   `json:"phase"`
	Outcome    string   `json:"outcome"`
	Verdict    *bool    `json:"verdict,omitempty"`
	Proposals  int      `json:"proposals"`
	Reasons    []string `json:"reasons,omitempty"`
	ErrorClass string   `json:"error_class,omitempty"`
	Error      string   `json:"error,omitempty"`
	ContextLen int      `json:"context_len"`
	DurationMS int64    `json:"duration_ms"`
	FactsHash  string   `json:"facts_hash"`
	PrevHash   string   `json:"prev_hash"`
}
