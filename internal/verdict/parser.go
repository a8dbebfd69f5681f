// Package verdict converts oracle replies into typed results.
//
// Replies are parsed as data only: the list grammar accepts literal lists,
// records, strings, numbers, True, False and None, and nothing is ever
// evaluated. Any reply that does not match the grammar expected for its
// phase is reported as a *FormatViolation and is never coerced to a default.
package verdict

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/sitaware/internal/model"
)

// Literal Boolean prefixes a phase-one reply must start with.
const (
	TokenTrue  = "True"
	TokenFalse = "False"
)

// combinedDelimiter separates the Boolean from the list in a combined reply.
const combinedDelimiter = ','

// Proposal record keys.
const (
	keyLocation = "location"
	keyDevice   = "device"
	keyAction   = "action"
)

// ErrFormat matches every *FormatViolation via errors.Is.
var ErrFormat = errors.New("format violation")

// FormatViolation is an oracle reply that does not follow the grammar of its
// phase. WrongShape is set when the reply is a valid literal of the wrong
// kind, for example rationale strings where proposals were expected.
type FormatViolation struct {
	Shape      model.Shape
	Reason     string
	Offset     int
	WrongShape bool
	Reply      string
}

func (e *FormatViolation) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("format violation (%s): %s at offset %d", e.Shape, e.Reason, e.Offset)
	}
	return fmt.Sprintf("format violation (%s): %s", e.Shape, e.Reason)
}

// Is reports whether target is ErrFormat.
func (e *FormatViolation) Is(target error) bool { return target == ErrFormat }

func violation(shape model.Shape, reply string, offset int, format string, args ...any) *FormatViolation {
	return &FormatViolation{
		Shape:  shape,
		Reason: fmt.Sprintf(format, args...),
		Offset: offset,
		Reply:  reply,
	}
}

// ParseBoolean reads a phase-one reply. The reply must begin with the exact
// token True or False; whatever follows is ignored.
func ParseBoolean(reply string) (bool, error) {
	switch {
	case strings.HasPrefix(reply, TokenTrue):
		return true, nil
	case strings.HasPrefix(reply, TokenFalse):
		return false, nil
	default:
		return false, violation(model.ShapeBoolean, reply, 0, "reply must begin with %s or %s", TokenTrue, TokenFalse)
	}
}

// ParseProposals reads a benign follow-up: a list of
// {"location", "device", "action"} records. An empty list is valid.
func ParseProposals(reply string) ([]model.ActionProposal, error) {
	return parseProposalsAt(reply, 0)
}

// ParseRationales reads an anomalous follow-up: a non-empty list of strings.
func ParseRationales(reply string) ([]string, error) {
	return parseRationalesAt(reply, 0)
}

// ParseFollowUp reads a phase-two reply using the grammar selected by the
// phase-one verdict and returns the terminal Verdict.
func ParseFollowUp(reply string, benign bool) (model.Verdict, error) {
	if benign {
		next, err := ParseProposals(reply)
		if err != nil {
			return model.Verdict{}, err
		}
		return model.BenignVerdict(next), nil
	}
	reasons, err := ParseRationales(reply)
	if err != nil {
		return model.Verdict{}, err
	}
	return model.AnomalousVerdict(reasons), nil
}

// ParseListAt parses the list that starts at offset in reply and returns it
// as []model.ActionProposal or []string depending on shape.
func ParseListAt(reply string, offset int, shape model.Shape) (any, error) {
	switch shape {
	case model.ShapeProposals:
		return parseProposalsAt(reply, offset)
	case model.ShapeRationales:
		return parseRationalesAt(reply, offset)
	default:
		return nil, fmt.Errorf("verdict: %s is not a list shape", shape)
	}
}

// ParseCombined reads a single-reply answer of the form
// "True, [...]" or "False, [...]": the Boolean prefix, a comma, then the
// list whose grammar the Boolean selects.
func ParseCombined(reply string) (model.Verdict, error) {
	benign, err := ParseBoolean(reply)
	if err != nil {
		return model.Verdict{}, err
	}
	offset := len(TokenFalse)
	if benign {
		offset = len(TokenTrue)
	}
	if offset >= len(reply) || reply[offset] != combinedDelimiter {
		return model.Verdict{}, violation(model.FollowUpShape(benign), reply, offset,
			"expected %q after %s", rune(combinedDelimiter), reply[:offset])
	}
	offset++
	if benign {
		next, err := parseProposalsAt(reply, offset)
		if err != nil {
			return model.Verdict{}, err
		}
		return model.BenignVerdict(next), nil
	}
	reasons, err := parseRationalesAt(reply, offset)
	if err != nil {
		return model.Verdict{}, err
	}
	return model.AnomalousVerdict(reasons), nil
}

func parseListValue(reply string, offset int, shape model.Shape) (Value, error) {
	if offset < 0 || offset > len(reply) {
		return Value{}, violation(shape, reply, offset, "delimiter offset out of range")
	}
	v, err := parseLiteral(reply[offset:])
	if err != nil {
		var se *syntaxError
		if errors.As(err, &se) {
			return Value{}, violation(shape, reply, offset+se.Offset, "%s", se.Msg)
		}
		return Value{}, violation(shape, reply, offset, "%v", err)
	}
	if v.Kind != KindList {
		fv := violation(shape, reply, offset, "expected a list, got %s", v.Kind)
		fv.WrongShape = true
		return Value{}, fv
	}
	return v, nil
}

func parseProposalsAt(reply string, offset int) ([]model.ActionProposal, error) {
	shape := model.ShapeProposals
	list, err := parseListValue(reply, offset, shape)
	if err != nil {
		return nil, err
	}
	out := make([]model.ActionProposal, 0, len(list.Items))
	for i, item := range list.Items {
		if item.Kind != KindRecord {
			fv := violation(shape, reply, -1, "element %d is a %s, expected a record", i, item.Kind)
			fv.WrongShape = true
			return nil, fv
		}
		if len(item.Fields) != 3 {
			return nil, violation(shape, reply, -1, "element %d has %d keys, expected %s, %s and %s",
				i, len(item.Fields), keyLocation, keyDevice, keyAction)
		}
		var p model.ActionProposal
		for _, f := range item.Fields {
			if f.Value.Kind != KindString {
				return nil, violation(shape, reply, -1, "element %d: %s must be a string, got %s", i, f.Key, f.Value.Kind)
			}
			if strings.TrimSpace(f.Value.Str) == "" {
				return nil, violation(shape, reply, -1, "element %d: %s is empty", i, f.Key)
			}
			switch f.Key {
			case keyLocation:
				p.Location = f.Value.Str
			case keyDevice:
				p.Device = f.Value.Str
			case keyAction:
				p.Action = f.Value.Str
			default:
				return nil, violation(shape, reply, -1, "element %d: unexpected key %q", i, f.Key)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func parseRationalesAt(reply string, offset int) ([]string, error) {
	shape := model.ShapeRationales
	list, err := parseListValue(reply, offset, shape)
	if err != nil {
		return nil, err
	}
	if len(list.Items) == 0 {
		return nil, violation(shape, reply, -1, "anomalous verdict requires at least one rationale")
	}
	out := make([]string, 0, len(list.Items))
	for i, item := range list.Items {
		if item.Kind != KindString {
			fv := violation(shape, reply, -1, "element %d is a %s, expected a string", i, item.Kind)
			fv.WrongShape = true
			return nil, fv
		}
		out = append(out, item.Str)
	}
	return out, nil
}
