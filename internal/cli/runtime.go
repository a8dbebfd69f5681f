package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/sitaware/internal/alert"
	"github.com/ppiankov/sitaware/internal/audit"
	"github.com/ppiankov/sitaware/internal/config"
	"github.com/ppiankov/sitaware/internal/facts"
	"github.com/ppiankov/sitaware/internal/metrics"
	"github.com/ppiankov/sitaware/internal/oracle"
	"github.com/ppiankov/sitaware/internal/protocol"
	"github.com/ppiankov/sitaware/internal/session"
	"github.com/ppiankov/sitaware/internal/store"
)

// runtime is one bootstrapped session with everything wired around it.
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	facts     *facts.Facts
	model     string
	audit     *audit.Log
	alerts    *alert.Dispatcher
	store     *store.Store
	session   *session.Context
	evaluator *protocol.Evaluator
}

// newRuntime loads facts, connects the oracle and opens the audit log and
// transcript store. A non-empty resume restores that stored session instead
// of bootstrapping a new one.
func newRuntime(ctx context.Context, c *config.Config, l *zap.Logger, resume string) (_ *runtime, err error) {
	rt := &runtime{cfg: c, logger: l, metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = rt.closeResources()
		}
	}()

	trimmer, err := session.NewTrimmer(c.Session.Trim, c.Session.MaxExchanges)
	if err != nil {
		return nil, err
	}
	if rt.facts, err = facts.Load(c.Facts.Devices, c.Facts.Rooms); err != nil {
		return nil, err
	}

	client, err := oracle.NewOpenAI(oracle.Config{
		BaseURL:           c.Oracle.BaseURL,
		APIKey:            c.Oracle.APIKey,
		Model:             c.Oracle.Model,
		Temperature:       c.Oracle.Temperature,
		MaxTokens:         c.Oracle.MaxTokens,
		Timeout:           c.Oracle.Timeout,
		RequestsPerSecond: c.Oracle.RequestsPerSecond,
	},
		oracle.WithTrimmer(trimmer),
		oracle.WithLogger(l),
		oracle.WithMetrics(rt.metrics),
	)
	if err != nil {
		return nil, err
	}
	rt.model = client.Model()

	if c.Audit.Path != "" {
		if rt.audit, err = audit.Open(c.Audit.Path); err != nil {
			return nil, err
		}
	}
	if c.Store.Path != "" {
		if rt.store, err = store.Open(c.Store.Path); err != nil {
			return nil, err
		}
	}

	switch {
	case resume != "" && rt.store == nil:
		return nil, &protocol.ConfigError{Field: "store.path", Err: errors.New("required to resume a session")}
	case resume != "":
		if rt.session, err = rt.resume(ctx, resume); err != nil {
			return nil, err
		}
		l.Info("session resumed", zap.String("session", rt.session.ID()), zap.Int("turns", rt.session.Len()))
	default:
		started := time.Now()
		if rt.session, err = session.Initialize(ctx, client, rt.facts); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		l.Info("session bootstrapped",
			zap.String("session", rt.session.ID()),
			zap.String("facts", rt.facts.Hash),
			zap.Duration("elapsed", time.Since(started)),
		)
	}
	rt.metrics.ContextTurns(rt.session.Len())

	opts := []protocol.Option{
		protocol.WithMetrics(rt.metrics),
		protocol.WithLogger(l),
		protocol.WithFactsHash(rt.facts.Hash),
	}
	if rt.audit != nil {
		opts = append(opts, protocol.WithRecorder(rt.audit))
	}
	if rt.alerts = alert.NewDispatcher(c.Alerts, l); rt.alerts != nil {
		opts = append(opts, protocol.WithRecorder(rt.alerts))
	}
	rt.evaluator = protocol.New(client, rt.session, opts...)
	return rt, nil
}

// resume restores a stored session. The session was primed with the facts
// it was stored under, so facts that changed since then are rejected.
func (rt *runtime) resume(ctx context.Context, id string) (*session.Context, error) {
	rec, err := rt.store.LoadTranscript(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", id, err)
	}
	switch rec.FactsHash {
	case rt.facts.Hash:
	case "":
		rt.logger.Warn("stored session has no facts hash", zap.String("session", id))
	default:
		return nil, &protocol.ConfigError{
			Field: "facts",
			Err:   fmt.Errorf("session %s was primed with facts %s, loaded facts are %s", id, rec.FactsHash, rt.facts.Hash),
		}
	}
	sc, err := rec.Context()
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", id, err)
	}
	return sc, nil
}

// Close persists the transcript and releases files. The session itself is
// kept in memory only until here.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.session != nil {
		if p := rt.cfg.Session.TranscriptPath; p != "" {
			if err := session.WriteJSON(p, rt.session); err != nil {
				errs = append(errs, err)
			}
		}
		if rt.store != nil {
			if err := rt.store.SaveSession(ctx, rt.session, rt.model, rt.facts.Hash, time.Now().UTC()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if rt.alerts != nil {
		rt.alerts.Wait()
	}
	errs = append(errs, rt.closeResources())
	return errors.Join(errs...)
}

func (rt *runtime) closeResources() error {
	var errs []error
	if rt.audit != nil {
		errs = append(errs, rt.audit.Close())
		rt.audit = nil
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
		rt.store = nil
	}
	return errors.Join(errs...)
}
