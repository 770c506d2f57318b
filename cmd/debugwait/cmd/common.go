package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/debugwait/internal/config"
	"github.com/hugo-lorenzo-mato/debugwait/internal/handshake"
	"github.com/hugo-lorenzo-mato/debugwait/internal/logging"
)

// Handshake flags shared by run and doctor, so doctor reports what run with
// the same flags would do.
var (
	flagStrict  bool
	flagNoWatch bool
)

func addHandshakeFlags(c *cobra.Command) {
	c.Flags().BoolVar(&flagStrict, "strict", false,
		"fail the handshake on setup faults instead of proceeding")
	c.Flags().String("interval", "200ms", "pause between two checks")
	c.Flags().String("timeout", "30s", "bound for every waiting stage")
	c.Flags().BoolVar(&flagNoWatch, "no-watch", false,
		"disable filesystem notifications, poll only")
}

// bindHandshakeFlags binds the executing command's timing flags into viper.
// It runs at execution time since both commands define the same flags.
func bindHandshakeFlags(c *cobra.Command) error {
	if err := viper.BindPFlag("handshake.interval", c.Flags().Lookup("interval")); err != nil {
		return err
	}
	return viper.BindPFlag("handshake.timeout", c.Flags().Lookup("timeout"))
}

func applyHandshakeFlags(s *handshake.Settings) {
	if flagStrict {
		s.Mode = handshake.ModeStrict
	}
	if flagNoWatch {
		s.Watch = false
	}
}

// loadConfig loads configuration through the global viper instance, so flag
// bindings apply. It returns the config file used, if any.
func loadConfig() (*config.Config, string, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, loader.ConfigFile(), nil
}

// newLogger builds the logger described by cfg. The returned function closes
// the log file, if one was opened.
func newLogger(cfg *config.Config) (*logging.Logger, func(), error) {
	level := cfg.Log.Level
	if quiet {
		level = "error"
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}

	return logging.New(logging.Config{
		Level:  level,
		Format: cfg.Log.Format,
		Output: out,
	}), closeFn, nil
}
