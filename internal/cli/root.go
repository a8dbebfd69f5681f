package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/sitaware/internal/config"
	"github.com/ppiankov/sitaware/internal/logging"
	"github.com/ppiankov/sitaware/internal/protocol"
)

// Exit codes follow sysexits.h.
const (
	exitFailure = 1
	exitDataErr = 65 // EX_DATAERR: oracle reply violated the expected format
	exitUnavail = 69 // EX_UNAVAILABLE: oracle unreachable
	exitConfig  = 78 // EX_CONFIG
)

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger = zap.NewNop()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.sitaware/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console|json)")
}

var rootCmd = &cobra.Command{
	Use:           "sitaware",
	Short:         "Situation-aware authorization checks for IoT actions",
	Long:          "Asks a reasoning oracle, primed with where every device is and how the rooms\nare laid out, whether the actions an event is about to trigger are benign.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotenv(); err != nil {
			return err
		}
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		c.ApplyEnv(os.Getenv)
		c.Apply(config.Overrides{LogLevel: logLevel, LogFormat: logFormat})
		if err := c.Validate(); err != nil {
			return err
		}
		l, err := logging.New(c.Log.Level, c.Log.Format)
		if err != nil {
			return err
		}
		cfg, logger = c, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch protocol.Classify(err) {
	case protocol.ClassNone:
		return 0
	case protocol.ClassTransport:
		return exitUnavail
	case protocol.ClassFormat:
		return exitDataErr
	case protocol.ClassConfig:
		return exitConfig
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

// exitError carries an explicit exit code for failures already reported.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
