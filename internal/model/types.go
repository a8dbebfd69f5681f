package model

import "strings"

// Role tags one turn in a conversational context.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r belongs to the fixed role vocabulary.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Turn is one role-tagged message. Turns are never modified once appended.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"content"`
}

// Event is one observation to be judged. Every field is optional; an absent
// field means "not applicable to this event", never an error.
// The two action fields accept a free-form string or any structured value
// that can be serialized (lists of actions, records).
type Event struct {
	UserLocation           string `json:"user_location,omitempty" yaml:"user_location,omitempty"`
	UserCommand            string `json:"user_command,omitempty" yaml:"user_command,omitempty"`
	SilentTriggeredActions any    `json:"silent_triggered_actions,omitempty" yaml:"silent_triggered_actions,omitempty"`
	ActualTriggeredActions any    `json:"actual_triggered_actions,omitempty" yaml:"actual_triggered_actions,omitempty"`
}

// Event field names as they appear in queries and configuration errors.
const (
	FieldUserLocation  = "user_location"
	FieldUserCommand   = "user_command"
	FieldSilentActions = "silent_triggered_actions"
	FieldActualActions = "actual_triggered_actions"
)

// Rendered holds the query representation of every event field.
type Rendered struct {
	UserLocation  string
	UserCommand   string
	SilentActions string
	ActualActions string
}

// Render converts every field to its query text. A field that cannot be
// serialized yields a *ConfigError naming it.
func (e Event) Render() (Rendered, error) {
	var r Rendered
	var err error
	if r.UserLocation, err = RenderValue(FieldUserLocation, e.UserLocation); err != nil {
		return Rendered{}, err
	}
	if r.UserCommand, err = RenderValue(FieldUserCommand, e.UserCommand); err != nil {
		return Rendered{}, err
	}
	if r.SilentActions, err = RenderValue(FieldSilentActions, e.SilentTriggeredActions); err != nil {
		return Rendered{}, err
	}
	if r.ActualActions, err = RenderValue(FieldActualActions, e.ActualTriggeredActions); err != nil {
		return Rendered{}, err
	}
	return r, nil
}

// IsEmpty returns true when no field carries a value.
func (e Event) IsEmpty() bool {
	return strings.TrimSpace(e.UserLocation) == "" &&
		strings.TrimSpace(e.UserCommand) == "" &&
		isAbsent(e.SilentTriggeredActions) &&
		isAbsent(e.ActualTriggeredActions)
}

// ActionProposal is one additional action suggested by the oracle for a
// benign event.
type ActionProposal struct {
	Location string `json:"location"`
	Device   string `json:"device"`
	Action   string `json:"action"`
}

// Verdict is the terminal result of a two-phase evaluation: either benign
// with a (possibly empty) list of related actions, or anomalous with the
// oracle's rationale.
type Verdict struct {
	Benign  bool             `json:"benign"`
	Next    []ActionProposal `json:"next,omitempty"`
	Reasons []string         `json:"reasons,omitempty"`
}

// BenignVerdict builds the benign variant.
func BenignVerdict(next []ActionProposal) Verdict {
	if next == nil {
		next = []ActionProposal{}
	}
	return Verdict{Benign: true, Next: next}
}

// AnomalousVerdict builds the anomalous variant.
func AnomalousVerdict(reasons []string) Verdict {
	return Verdict{Benign: false, Reasons: reasons}
}

// Kind returns "benign" or "anomalous".
func (v Verdict) Kind() string {
	if v.Benign {
		return KindBenign
	}
	return KindAnomalous
}

// Verdict kinds.
const (
	KindBenign    = "benign"
	KindAnomalous = "anomalous"
)

// Shape names the grammar a reply is expected to follow.
type Shape string

const (
	ShapeBoolean    Shape = "boolean_only"
	ShapeProposals  Shape = "proposal_list"
	ShapeRationales Shape = "rationale_list"
)

// FollowUpShape returns the follow-up grammar selected by a phase-one verdict.
func FollowUpShape(benign bool) Shape {
	if benign {
		return ShapeProposals
	}
	return ShapeRationales
}
