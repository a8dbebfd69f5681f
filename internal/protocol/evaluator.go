// Package protocol runs the two-phase authorization exchange against a
// session: a Boolean verdict first, then a follow-up whose grammar the
// verdict selects.
//
//	AwaitingVerdict --Begin--> AwaitingFollowUp --Resolve--> Done
//	        \                        \
//	         +------> Failed <--------+
//
// The phase-one verdict is available from the Pending continuation before
// phase two starts, so callers can act on it immediately.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/sitaware/internal/audit"
	"github.com/ppiankov/sitaware/internal/metrics"
	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/oracle"
	"github.com/ppiankov/sitaware/internal/session"
	"github.com/ppiankov/sitaware/internal/verdict"
)

// State is the position of one evaluation in the protocol.
type State int

const (
	StateAwaitingVerdict State = iota
	StateAwaitingFollowUp
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingVerdict:
		return "awaiting_verdict"
	case StateAwaitingFollowUp:
		return "awaiting_follow_up"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Phase names used in logs, metrics and audit entries.
const (
	PhaseVerdict  = "verdict"
	PhaseFollowUp = "follow_up"
	PhaseCombined = "combined"
)

// Recorder persists one entry per finished evaluation.
type Recorder interface {
	Record(entry audit.Entry) error
}

// Observer receives the two emissions of an evaluation in order.
type Observer interface {
	OnVerdict(benign bool)
	OnResult(v model.Verdict)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Verdict func(benign bool)
	Result  func(v model.Verdict)
}

func (o ObserverFuncs) OnVerdict(benign bool) {
	if o.Verdict != nil {
		o.Verdict(benign)
	}
}

func (o ObserverFuncs) OnResult(v model.Verdict) {
	if o.Result != nil {
		o.Result(v)
	}
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRecorder records every finished evaluation. Recorders are called in
// the order they were added.
func WithRecorder(r Recorder) Option {
	return func(e *Evaluator) {
		if r != nil {
			e.recorders = append(e.recorders, r)
		}
	}
}

// WithMetrics records outcomes and phase latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFactsHash tags audit entries with the hash of the primed facts.
func WithFactsHash(h string) Option {
	return func(e *Evaluator) { e.factsHash = h }
}

// Evaluator judges events against one session context. At most one
// evaluation is in flight at a time.
type Evaluator struct {
	client oracle.Client
	sc     *session.Context

	recorders []Recorder
	metrics   *metrics.Metrics
	logger    *zap.Logger
	factsHash string

	mu   sync.Mutex
	busy bool
}

// New creates an evaluator over a bootstrapped session context.
func New(client oracle.Client, sc *session.Context, opts ...Option) *Evaluator {
	e := &Evaluator{client: client, sc: sc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session returns the context the evaluator appends to.
func (e *Evaluator) Session() *session.Context { return e.sc }

func (e *Evaluator) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrBusy
	}
	e.busy = true
	return nil
}

func (e *Evaluator) release() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

// Pending is an evaluation whose phase-one verdict is known and whose
// follow-up has not been requested yet.
type Pending struct {
	e        *Evaluator
	event    model.Event
	rendered model.Rendered
	benign   bool
	started  time.Time

	mu        sync.Mutex
	state     State
	resolving bool
}

// Begin sends the phase-one query and parses the Boolean verdict.
// Unrenderable events fail with a *ConfigError before the oracle is called.
func (e *Evaluator) Begin(ctx context.Context, event model.Event) (*Pending, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	started := time.Now()

	rendered, err := event.Render()
	if err != nil {
		e.finish(event, model.Rendered{}, PhaseVerdict, started, nil, err)
		return nil, err
	}

	reply, err := e.client.Complete(ctx, e.sc, VerdictQuery(rendered))
	if err == nil {
		var benign bool
		benign, err = verdict.ParseBoolean(reply)
		if err == nil {
			e.metrics.Phase(PhaseVerdict, time.Since(started))
			e.logger.Info("verdict",
				zap.String("session", e.sc.ID()),
				zap.Bool("benign", benign),
				zap.Duration("elapsed", time.Since(started)),
			)
			return &Pending{
				e:        e,
				event:    event,
				rendered: rendered,
				benign:   benign,
				started:  started,
				state:    StateAwaitingFollowUp,
			}, nil
		}
	}
	e.finish(event, rendered, PhaseVerdict, started, nil, err)
	return nil, err
}

// Benign returns the phase-one verdict.
func (p *Pending) Benign() bool { return p.benign }

// Shape returns the grammar the follow-up reply will be parsed with.
func (p *Pending) Shape() model.Shape { return model.FollowUpShape(p.benign) }

// State returns the current protocol state.
func (p *Pending) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Resolve sends the follow-up query and returns the terminal verdict.
// It may be called once. Failures are returned as *FollowUpError.
func (p *Pending) Resolve(ctx context.Context) (model.Verdict, error) {
	p.mu.Lock()
	if p.state != StateAwaitingFollowUp || p.resolving {
		p.mu.Unlock()
		return model.Verdict{}, ErrNotPending
	}
	p.resolving = true
	p.mu.Unlock()

	phaseStart := time.Now()
	reply, err := p.e.client.Complete(ctx, p.e.sc, FollowUpQuery())
	var v model.Verdict
	if err == nil {
		v, err = verdict.ParseFollowUp(reply, p.benign)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolving = false
	if err != nil {
		p.state = StateFailed
		err = &FollowUpError{Benign: p.benign, Err: err}
		p.e.finish(p.event, p.rendered, PhaseFollowUp, p.started, nil, err)
		return model.Verdict{}, err
	}

	p.state = StateDone
	p.e.metrics.Phase(PhaseFollowUp, time.Since(phaseStart))
	p.e.finish(p.event, p.rendered, PhaseFollowUp, p.started, &v, nil)
	return v, nil
}

// Discard ends the evaluation after phase one. The session is released and
// the verdict-only outcome is recorded.
func (p *Pending) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateAwaitingFollowUp || p.resolving {
		return
	}
	p.state = StateDone
	p.e.finish(p.event, p.rendered, PhaseVerdict, p.started, &model.Verdict{Benign: p.benign}, nil)
}

// Evaluate runs both phases. The observer sees the Boolean verdict strictly
// before the follow-up query is sent, then the terminal result.
func (e *Evaluator) Evaluate(ctx context.Context, event model.Event, obs Observer) (model.Verdict, error) {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	p, err := e.Begin(ctx, event)
	if err != nil {
		return model.Verdict{}, err
	}
	obs.OnVerdict(p.Benign())

	v, err := p.Resolve(ctx)
	if err != nil {
		return model.Verdict{}, err
	}
	obs.OnResult(v)
	return v, nil
}

// EvaluateCombined asks for the verdict and its list in a single exchange
// ("True, [...]" or "False, [...]").
func (e *Evaluator) EvaluateCombined(ctx context.Context, event model.Event) (model.Verdict, error) {
	if err := e.acquire(); err != nil {
		return model.Verdict{}, err
	}
	started := time.Now()

	rendered, err := event.Render()
	if err != nil {
		e.finish(event, model.Rendered{}, PhaseCombined, started, nil, err)
		return model.Verdict{}, err
	}

	var v model.Verdict
	reply, err := e.client.Complete(ctx, e.sc, CombinedQuery(rendered))
	if err == nil {
		v, err = verdict.ParseCombined(reply)
	}
	if err != nil {
		e.finish(event, rendered, PhaseCombined, started, nil, err)
		return model.Verdict{}, err
	}
	e.metrics.Phase(PhaseCombined, time.Since(started))
	e.finish(event, rendered, PhaseCombined, started, &v, nil)
	return v, nil
}

// finish releases the session and reports a terminal outcome. v is the
// result when err is nil; in PhaseVerdict it carries only the Boolean.
// A *FollowUpError keeps its phase-one verdict on the entry.
func (e *Evaluator) finish(event model.Event, r model.Rendered, phase string, started time.Time, v *model.Verdict, err error) {
	defer e.release()

	entry := audit.Entry{
		Timestamp: time.Now().UTC().Format(audit.TimestampFormat),
		SessionID: e.sc.ID(),
		Event: audit.Event{
			UserLocation:  r.UserLocation,
			UserCommand:   r.UserCommand,
			SilentActions: r.SilentActions,
			ActualActions: r.ActualActions,
		},
		Phase:      phase,
		ContextLen: e.sc.Len(),
		DurationMS: time.Since(started).Milliseconds(),
		FactsHash:  e.factsHash,
	}
	if entry.Event.UserLocation == "" {
		entry.Event.UserLocation = event.UserLocation
	}

	switch {
	case err != nil:
		entry.Outcome = audit.OutcomeError
		entry.ErrorClass = string(Classify(err))
		entry.Error = err.Error()
		if benign, ok := VerdictOf(err); ok {
			entry.Verdict = &benign
		}
		e.logFailure(phase, err)
	case phase == PhaseVerdict:
		benign := v.Benign
		entry.Verdict = &benign
		entry.Outcome = audit.OutcomeVerdictAnomalous
		if v.Benign {
			entry.Outcome = audit.OutcomeVerdictBenign
		}
	default:
		benign := v.Benign
		entry.Outcome = v.Kind()
		entry.Verdict = &benign
		entry.Proposals = len(v.Next)
		entry.Reasons = v.Reasons
		e.logger.Info("evaluation complete",
			zap.String("session", e.sc.ID()),
			zap.String("outcome", entry.Outcome),
			zap.Int("proposals", len(v.Next)),
			zap.Int("reasons", len(v.Reasons)),
			zap.Duration("elapsed", time.Since(started)),
		)
	}

	e.metrics.Evaluation(entry.Outcome)
	e.metrics.ContextTurns(entry.ContextLen)
	for _, r := range e.recorders {
		if rerr := r.Record(entry); rerr != nil {
			e.logger.Warn("record failed", zap.Error(rerr))
		}
	}
}

func (e *Evaluator) logFailure(phase string, err error) {
	fields := []zap.Field{
		zap.String("session", e.sc.ID()),
		zap.String("phase", phase),
		zap.String("class", string(Classify(err))),
		zap.Error(err),
	}
	if benign, ok := VerdictOf(err); ok {
		fields = append(fields, zap.Bool("benign", benign))
	}
	var fv *verdict.FormatViolation
	if errors.As(err, &fv) {
		e.metrics.FormatViolation(string(fv.Shape))
		fields = append(fields, zap.String("reply_preview", preview(fv.Reply, 120)))
	}
	e.logger.Warn("evaluation failed", fields...)
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
