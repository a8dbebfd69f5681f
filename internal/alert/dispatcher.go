package alert

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/sitaware/internal/audit"
)

// Dispatcher fans out evaluation outcomes to matching webhook configurations.
// It satisfies the evaluator's recorder interface.
type Dispatcher struct {
	configs []Config
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config, logger *zap.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{configs: configs, logger: logger}
}

// Record converts an audit entry into an alert and dispatches it.
func (d *Dispatcher) Record(entry audit.Entry) error {
	d.Dispatch(FromEntry(entry))
	return nil
}

// FromEntry builds the alert payload for an audit entry.
func FromEntry(e audit.Entry) Event {
	return Event{
		Timestamp:     e.Timestamp,
		SessionID:     e.SessionID,
		Outcome:       e.Outcome,
		Verdict:       e.Verdict,
		UserLocation:  e.Event.UserLocation,
		UserCommand:   e.Event.UserCommand,
		ActualActions: e.Event.ActualActions,
		Reasons:       e.Reasons,
		ErrorClass:    e.ErrorClass,
		Error:         e.Error,
		FactsHash:     e.FactsHash,
	}
}

// Dispatch sends the event to all webhooks whose Events list contains the
// outcome. Webhooks listening for anomalies also receive failed evaluations
// whose phase-one verdict was anomalous. Sends run in the background; Wait
// blocks until they finish.
func (d *Dispatcher) Dispatch(event Event) {
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg Config) {
			defer d.wg.Done()
			if err := Send(context.Background(), cfg, event); err != nil {
				d.logger.Warn("alert delivery failed",
					zap.String("url", cfg.URL),
					zap.String("outcome", event.Outcome),
					zap.Error(err),
				)
			}
		}(cfg)
	}
}

// Wait blocks until every dispatched alert has been delivered or given up.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func matches(events []string, event Event) bool {
	for _, e := range events {
		if e == event.Outcome {
			return true
		}
		if (e == audit.OutcomeAnomalous || e == audit.OutcomeVerdictAnomalous) && event.Outcome == audit.OutcomeError && event.Anomalous() {
			return true
		}
	}
	return false
}
