// Package alert posts webhook notifications for evaluation outcomes.
package alert

import "github.com/ppiankov/sitaware/internal/audit"

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url" validate:"required,url"`
	Format  string            `yaml:"format"  json:"format" validate:"omitempty,oneof=generic slack pagerduty"`
	Events  []string          `yaml:"events"  json:"events"` // audit outcomes, e.g. ["anomalous", "error"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp     string   `json:"timestamp"`
	SessionID     string   `json:"session_id"`
	Outcome       string   `json:"outcome"`
	Verdict       *bool    `json:"verdict,omitempty"`
	UserLocation  string   `json:"user_location"`
	UserCommand   string   `json:"user_command"`
	ActualActions string   `json:"actual_actions"`
	Reasons       []string `json:"reasons,omitempty"`
	ErrorClass    string   `json:"error_class,omitempty"`
	Error         string   `json:"error,omitempty"`
	FactsHash     string   `json:"facts_hash"`
}

// Anomalous reports whether the oracle judged the event anomalous, either as
// the final outcome or as a phase-one verdict whose follow-up failed.
func (e Event) Anomalous() bool {
	switch e.Outcome {
	case audit.OutcomeAnomalous, audit.OutcomeVerdictAnomalous:
		return true
	}
	return e.Verdict != nil && !*e.Verdict
}
