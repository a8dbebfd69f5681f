// Package scenario runs scripted evaluation cases through the real
// two-phase protocol and checks their outcomes.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sitaware/internal/facts"
	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/oracle"
	"github.com/ppiankov/sitaware/internal/protocol"
	"github.com/ppiankov/sitaware/internal/session"
)

// bootstrapReply answers the priming query of every case.
const bootstrapReply = "OK"

// Run evaluates all cases in a scenario. A scenario whose facts cannot be
// rendered fails every case with config_error.
func Run(ctx context.Context, s *Scenario) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	f, factsErr := facts.FromValues(s.Facts.Devices, s.Facts.Rooms)

	for i, c := range s.Cases {
		var cr CaseResult
		if factsErr != nil {
			cr = CaseResult{Actual: outcomeOf(factsErr), Detail: factsErr.Error()}
		} else {
			cr = runCase(ctx, f, c)
		}
		cr.Index = i + 1
		cr.Name = c.Name
		cr.Expected = strings.ToLower(c.Expect)
		if cr.Name == "" {
			cr.Name = fmt.Sprintf("case %d", i+1)
		}

		cr.Passed = cr.Actual == cr.Expected
		if cr.Passed {
			cr.Passed, cr.Detail = checkCounts(c, cr)
		}
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

func runCase(ctx context.Context, f *facts.Facts, c Case) CaseResult {
	replies := []oracle.Reply{{Text: bootstrapReply}}
	for _, r := range c.Replies {
		replies = append(replies, toReply(r))
	}
	o := oracle.NewScriptedReplies(replies...)

	sc, err := session.Initialize(ctx, o, f)
	if err != nil {
		return CaseResult{Actual: outcomeOf(err), Detail: "bootstrap: " + err.Error()}
	}
	e := protocol.New(o, sc)
	before := sc.Len()

	var v model.Verdict
	switch {
	case c.VerdictOnly:
		var p *protocol.Pending
		p, err = e.Begin(ctx, c.Event.event())
		if err == nil {
			v.Benign = p.Benign()
			p.Discard()
		}
	case c.Combined:
		v, err = e.EvaluateCombined(ctx, c.Event.event())
	default:
		v, err = e.Evaluate(ctx, c.Event.event(), nil)
	}

	cr := CaseResult{Growth: sc.Len() - before}
	if err != nil {
		cr.Actual = outcomeOf(err)
		cr.Detail = err.Error()
		return cr
	}
	cr.Actual = v.Kind()
	cr.Proposals = len(v.Next)
	cr.Reasons = len(v.Reasons)
	return cr
}

func toReply(r ScriptedReply) oracle.Reply {
	if r.Error == "" {
		return oracle.Reply{Text: r.Text}
	}
	return oracle.Reply{Err: &oracle.TransportError{
		Op:   "scripted",
		Kind: oracle.Kind(r.Error),
		Err:  errors.New("scripted failure"),
	}}
}

func outcomeOf(err error) string {
	switch protocol.Classify(err) {
	case protocol.ClassTransport:
		return ExpectTransportError
	case protocol.ClassFormat:
		return ExpectFormatViolation
	case protocol.ClassConfig:
		return ExpectConfigError
	default:
		return "error"
	}
}

func checkCounts(c Case, cr CaseResult) (bool, string) {
	if c.Proposals != nil && *c.Proposals != cr.Proposals {
		return false, fmt.Sprintf("expected %d proposals, got %d", *c.Proposals, cr.Proposals)
	}
	if c.Reasons != nil && *c.Reasons != cr.Reasons {
		return false, fmt.Sprintf("expected %d reasons, got %d", *c.Reasons, cr.Reasons)
	}
	return true, cr.Detail
}

// Load parses a scenario YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadAndRun loads a scenario YAML file and runs it.
func LoadAndRun(ctx context.Context, path string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	result := Run(ctx, s)
	result.File = path
	return result, nil
}
