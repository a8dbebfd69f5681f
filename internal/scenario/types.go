package scenario

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sitaware/internal/model"
)

// Expected outcomes a case may assert.
const (
	ExpectBenign          = "benign"
	ExpectAnomalous       = "anomalous"
	ExpectFormatViolation = "format_violation"
	ExpectTransportError  = "transport_error"
	ExpectConfigError     = "config_error"
)

// FactsSpec is the environment every case in the scenario is primed with.
type FactsSpec struct {
	Devices any `yaml:"devices"`
	Rooms   any `yaml:"rooms"`
}

// EventSpec is the event a case submits.
type EventSpec struct {
	UserLocation           string `yaml:"user_location,omitempty"`
	UserCommand            string `yaml:"user_command,omitempty"`
	SilentTriggeredActions any    `yaml:"silent_triggered_actions,omitempty"`
	ActualTriggeredActions any    `yaml:"actual_triggered_actions,omitempty"`
}

func (e EventSpec) event() model.Event {
	return model.Event{
		UserLocation:           e.UserLocation,
		UserCommand:            e.UserCommand,
		SilentTriggeredActions: e.SilentTriggeredActions,
		ActualTriggeredActions: e.ActualTriggeredActions,
	}
}

// ScriptedReply is one oracle answer. In YAML it is either a plain scalar
// (the reply text) or a mapping with an error kind such as rate_limit.
type ScriptedReply struct {
	Text  string `yaml:"text,omitempty"`
	Error string `yaml:"error,omitempty"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (r *ScriptedReply) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		r.Text = value.Value
		return nil
	case yaml.MappingNode:
		type plain ScriptedReply
		return value.Decode((*plain)(r))
	default:
		return fmt.Errorf("line %d: reply must be a string or a mapping", value.Line)
	}
}

// Case is one evaluation within a scenario. Every case runs on a freshly
// bootstrapped session.
type Case struct {
	Name        string          `yaml:"name"`
	Event       EventSpec       `yaml:"event"`
	Replies     []ScriptedReply `yaml:"replies"`
	Expect      string          `yaml:"expect"`
	Proposals   *int            `yaml:"proposals,omitempty"`
	Reasons     *int            `yaml:"reasons,omitempty"`
	VerdictOnly bool            `yaml:"verdict_only,omitempty"`
	Combined    bool            `yaml:"combined,omitempty"`
}

// Scenario is a named collection of evaluation cases sharing one set of facts.
type Scenario struct {
	Name  string    `yaml:"name"`
	Facts FactsSpec `yaml:"facts"`
	Cases []Case    `yaml:"cases"`
}

// CaseResult is the outcome of running one case.
type CaseResult struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
	Proposals int    `json:"proposals"`
	Reasons   int    `json:"reasons"`
	Growth    int    `json:"context_growth"`
	Detail    string `json:"detail,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
