package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/protocol"
)

var (
	evalLocation    string
	evalCommand     string
	evalSilent      string
	evalActual      string
	evalEventFile   string
	evalCombined    bool
	evalVerdictOnly bool
	evalFormat      string
)

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringVar(&evalLocation, "location", "", "Current location of the user")
	evalCmd.Flags().StringVar(&evalCommand, "command", "", "The user's direct command")
	evalCmd.Flags().StringVar(&evalSilent, "silent", "", "Actions the user configured to fire automatically")
	evalCmd.Flags().StringVar(&evalActual, "actual", "", "Actions about to be triggered")
	evalCmd.Flags().StringVar(&evalEventFile, "event", "", "Read the event from a JSON file (- for stdin)")
	evalCmd.Flags().BoolVar(&evalCombined, "combined", false, "Ask for verdict and list in one exchange")
	evalCmd.Flags().BoolVar(&evalVerdictOnly, "verdict-only", false, "Stop after the benign/anomalous verdict")
	evalCmd.Flags().StringVarP(&evalFormat, "format", "f", "text", "Output format (text|json)")
	evalCmd.MarkFlagsMutuallyExclusive("combined", "verdict-only")
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate one event in a fresh session",
	Long: "Bootstraps a session, evaluates a single event given by flags or a JSON\n" +
		"file, and prints the verdict.\n\n" +
		"Exit codes: 0 ok, 65 malformed oracle reply, 69 oracle unavailable,\n" +
		"78 configuration error.",
	RunE: runEval,
}

// eventFile is the JSON form of an event.
type eventFile struct {
	UserLocation           string `json:"user_location"`
	UserCommand            string `json:"user_command"`
	SilentTriggeredActions any    `json:"silent_triggered_actions"`
	ActualTriggeredActions any    `json:"actual_triggered_actions"`
}

func readEvent(r io.Reader) (model.Event, error) {
	var f eventFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return model.Event{}, &protocol.ConfigError{Field: "event", Err: err}
	}
	return model.Event{
		UserLocation:           f.UserLocation,
		UserCommand:            f.UserCommand,
		SilentTriggeredActions: f.SilentTriggeredActions,
		ActualTriggeredActions: f.ActualTriggeredActions,
	}, nil
}

func eventFromFlags(cmd *cobra.Command) (model.Event, error) {
	if evalEventFile == "" {
		return model.Event{
			UserLocation:           evalLocation,
			UserCommand:            evalCommand,
			SilentTriggeredActions: optional(evalSilent),
			ActualTriggeredActions: optional(evalActual),
		}, nil
	}
	if evalEventFile == "-" {
		return readEvent(cmd.InOrStdin())
	}
	f, err := os.Open(evalEventFile)
	if err != nil {
		return model.Event{}, &protocol.ConfigError{Field: "event", Err: err}
	}
	defer f.Close()
	return readEvent(f)
}

// evalResult is the JSON output of eval.
type evalResult struct {
	SessionID   string                 `json:"session_id"`
	Benign      bool                   `json:"benign"`
	VerdictOnly bool                   `json:"verdict_only,omitempty"`
	Next        []model.ActionProposal `json:"next,omitempty"`
	Reasons     []string               `json:"reasons,omitempty"`
	ErrorClass  string                 `json:"error_class,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

func runEval(cmd *cobra.Command, args []string) error {
	event, err := eventFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger, "")
	if err != nil {
		return err
	}
	res, evalErr := evaluateOnce(ctx, rt.evaluator, event, evalCombined, evalVerdictOnly)
	closeErr := rt.Close(context.WithoutCancel(ctx))
	if evalErr != nil {
		// a verdict that preceded the failure is still reported
		if _, ok := protocol.VerdictOf(evalErr); ok {
			if err := writeEvalResult(cmd.OutOrStdout(), res, evalFormat); err != nil {
				return err
			}
		}
		return evalErr
	}
	if closeErr != nil {
		return closeErr
	}
	return writeEvalResult(cmd.OutOrStdout(), res, evalFormat)
}

func evaluateOnce(ctx context.Context, e *protocol.Evaluator, event model.Event, combined, verdictOnly bool) (evalResult, error) {
	res := evalResult{SessionID: e.Session().ID(), VerdictOnly: verdictOnly}
	var v model.Verdict
	var err error
	switch {
	case verdictOnly:
		var p *protocol.Pending
		if p, err = e.Begin(ctx, event); err != nil {
			return res, err
		}
		p.Discard()
		v.Benign = p.Benign()
	case combined:
		v, err = e.EvaluateCombined(ctx, event)
	default:
		v, err = e.Evaluate(ctx, event, nil)
	}
	if err != nil {
		if benign, ok := protocol.VerdictOf(err); ok {
			res.Benign = benign
			res.ErrorClass = string(protocol.Classify(err))
			res.Error = err.Error()
		}
		return res, err
	}
	res.Benign, res.Next, res.Reasons = v.Benign, v.Next, v.Reasons
	return res, nil
}

func writeEvalResult(w io.Writer, res evalResult, format string) error {
	if format == "json" {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}
	fmt.Fprintf(w, "is_correct: %s\n", pyBool(res.Benign))
	if res.Error != "" {
		fmt.Fprintf(w, "error (%s): %s\n", res.ErrorClass, res.Error)
		return nil
	}
	if !res.VerdictOnly {
		fmt.Fprintf(w, "content: %s\n", verdictContent(model.Verdict{Benign: res.Benign, Next: res.Next, Reasons: res.Reasons}))
	}
	return nil
}

// verdictContent renders the follow-up list of a verdict as JSON.
func verdictContent(v model.Verdict) string {
	var list any = v.Reasons
	if v.Benign {
		list = v.Next
		if v.Next == nil {
			list = []model.ActionProposal{}
		}
	}
	out, err := json.Marshal(list)
	if err != nil {
		return fmt.Sprintf("%v", list)
	}
	return string(out)
}
