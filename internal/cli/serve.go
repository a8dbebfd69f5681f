package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/sitaware/internal/inbox"
)

var (
	serveMetricsAddr string
	servePoll        bool
	serveResume      string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")
	serveCmd.Flags().BoolVar(&servePoll, "poll", false, "Poll the inbox instead of using filesystem notifications")
	serveCmd.Flags().StringVar(&serveResume, "resume", "", "Continue a stored session by ID instead of bootstrapping")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Evaluate events dropped into the inbox directory",
	Long: "Bootstraps one session and watches the inbox for JSON event jobs.\n" +
		"Each job is evaluated in order and its result written to the outbox.\n" +
		"Optionally exposes Prometheus metrics over HTTP.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger, serveResume)
	if err != nil {
		return err
	}

	d, err := inbox.New(inbox.Config{
		Dirs: inbox.DirConfig{
			Inbox:  cfg.Inbox.Dir,
			Outbox: cfg.Inbox.Outbox,
			State:  cfg.Inbox.State,
		},
		Poll:         servePoll || cfg.Inbox.Poll,
		PollInterval: cfg.Inbox.PollInterval,
		Logger:       logger,
	}, rt.evaluator)
	if err != nil {
		return errors.Join(err, rt.Close(context.WithoutCancel(ctx)))
	}

	addr := cfg.Metrics.Addr
	if serveMetricsAddr != "" {
		addr = serveMetricsAddr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	if addr != "" {
		g.Go(func() error { return serveMetrics(gctx, addr, rt.metrics.Handler()) })
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "sitaware watching %s (session %s)\n", cfg.Inbox.Dir, rt.session.ID())
	if addr != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Metrics: http://%s/metrics\n", addr)
	}

	runErr := g.Wait()
	logger.Info("shutting down", zap.Int("turns", rt.session.Len()))
	closeErr := rt.Close(context.WithoutCancel(ctx))
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return closeErr
}

func serveMetrics(ctx context.Context, addr string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
