package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/debugwait/internal/config"
	"github.com/hugo-lorenzo-mato/debugwait/internal/handshake"
	"github.com/hugo-lorenzo-mato/debugwait/internal/logging"
)

var runExtras []string

var runCmd = &cobra.Command{
	Use:   "run [flags] [-- program [args...]]",
	Short: "Run the debugger handshake, then the program",
	Long: `Run the debugger-attach handshake described by the launch parameters
and, if it succeeds, start the program with inherited stdio.

Launch parameters come from the extras section of the config file and from
--extra flags:

  debug_ping=true         master switch, anything else skips the handshake
  ping_file=PATH          written with our pid once ready
  pong_file=PATH          waited for, then removed
  gdbserver_socket=PATH   waited for after the helper starts
  gdbserver_command=CMD   helper started through the shell
  ping_socket=ADDR        unix socket rendezvous ('@name' for abstract)

The helper is terminated when the program exits.`,
	Example: `  debugwait run -e debug_ping=true -e ping_file=/tmp/ping -e pong_file=/tmp/pong \
    -e gdbserver_command='gdbserver --multi +/tmp/dbg.sock' -- ./app --flag`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runExtras, "extra", "e", nil,
		"launch parameter as key=value (repeatable)")
	addHandshakeFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := bindHandshakeFlags(cmd); err != nil {
		return err
	}
	cfg, cfgUsed, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	if cfgUsed != "" {
		logger.Debug("using config file", "path", cfgUsed)
	}

	overrides, err := config.ParseExtraPairs(runExtras)
	if err != nil {
		return err
	}
	settings, err := buildSettings(cfg, overrides, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord := handshake.New(settings, handshake.WithLogger(logger))
	defer func() {
		if err := coord.Close(); err != nil {
			logger.Warn("stopping helper failed", "error", err)
		}
	}()

	if !coord.Connect(ctx) {
		r := coord.Report()
		return &exitError{code: 1, err: fmt.Errorf("debugger handshake failed during %s", r.Stage)}
	}
	if len(args) == 0 {
		return nil
	}

	code, err := runProgram(ctx, args, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// buildSettings resolves handshake settings from config and --extra
// overrides, warning about parameters the handshake will ignore or trip on.
func buildSettings(cfg *config.Config, overrides map[string]string, logger *logging.Logger) (handshake.Settings, error) {
	merged := config.MergeExtras(cfg.Extras, overrides)
	logger.Debug("extra parameters", "extras", fmt.Sprint(logger.Sanitizer().SanitizeMap(merged)))
	for _, key := range config.UnknownExtraKeys(merged) {
		if hint := config.SuggestExtraKey(key); hint != "" {
			logger.Warn("ignoring unknown launch parameter", "key", key, "did_you_mean", hint)
			continue
		}
		logger.Warn("ignoring unknown launch parameter", "key", key)
	}
	for _, issue := range config.ParseExtras(merged).Issues() {
		logger.Warn(issue)
	}

	settings, err := cfg.HandshakeSettings(overrides)
	if err != nil {
		return handshake.Settings{}, err
	}
	applyHandshakeFlags(&settings)
	return settings, nil
}

// runProgram runs args[0] with the given stdio and returns its exit code.
func runProgram(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, logger *logging.Logger) (int, error) {
	// #nosec G204 -- the program is what the operator asked to run
	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.Stdin = stdin
	c.Stdout = stdout
	c.Stderr = stderr

	logger.Info("starting program", "program", args[0], "args", args[1:])
	err := c.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Killed by a signal.
			code = 1
		}
		logger.Info("program exited", "code", code)
		return code, nil
	}
	if err != nil {
		return 0, fmt.Errorf("running %s: %w", args[0], err)
	}
	logger.Info("program exited", "code", 0)
	return 0, nil
}
