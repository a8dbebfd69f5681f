package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/protocol"
)

var runResume string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runResume, "resume", "", "Continue a stored session by ID instead of bootstrapping")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate events interactively in one session",
	Long: "Bootstraps a session, then repeatedly asks \"Stop?\" followed by the four\n" +
		"event fields. Answer y to stop; an empty field is sent as None.\n" +
		"The transcript is written when the loop ends.",
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(cmd.ErrOrStderr(), "Wait...")
	rt, err := newRuntime(ctx, cfg, logger, runResume)
	if err != nil {
		return err
	}

	loopErr := interactive(ctx, rt.evaluator, cmd.InOrStdin(), cmd.OutOrStdout())
	// Persist even after an interrupt.
	closeErr := rt.Close(context.WithoutCancel(ctx))
	if loopErr != nil {
		return loopErr
	}
	return closeErr
}

var eventPrompts = []string{
	model.FieldUserLocation,
	model.FieldUserCommand,
	model.FieldSilentActions,
	model.FieldActualActions,
}

// interactive reads events from in until "y" or EOF. Evaluation failures
// are reported and the loop continues with the next event.
func interactive(ctx context.Context, e *protocol.Evaluator, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	read := func(prompt string) (string, bool) {
		fmt.Fprint(out, prompt)
		if !sc.Scan() {
			return "", false
		}
		return strings.TrimSpace(sc.Text()), true
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		answer, ok := read("Stop?")
		if !ok || answer == "y" {
			return sc.Err()
		}

		var fields [4]string
		for i, name := range eventPrompts {
			if fields[i], ok = read(name + ": "); !ok {
				return sc.Err()
			}
		}
		event := model.Event{
			UserLocation:           fields[0],
			UserCommand:            fields[1],
			SilentTriggeredActions: optional(fields[2]),
			ActualTriggeredActions: optional(fields[3]),
		}

		start := time.Now()
		_, err := e.Evaluate(ctx, event, protocol.ObserverFuncs{
			Verdict: func(benign bool) {
				fmt.Fprintf(out, "is_correct: %s\n", pyBool(benign))
				fmt.Fprintf(out, "Time taken: %.2fs\n", time.Since(start).Seconds())
			},
			Result: func(v model.Verdict) {
				fmt.Fprintf(out, "content: %s\n", verdictContent(v))
				fmt.Fprintf(out, "Time taken: %.2fs\n", time.Since(start).Seconds())
			},
		})
		if err != nil {
			logger.Debug("interactive evaluation failed", zap.Error(err))
			fmt.Fprintf(out, "error (%s): %v\n", protocol.Classify(err), err)
		}
	}
}

// optional maps an empty answer to an absent value.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
