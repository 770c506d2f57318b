package config

// Config holds all application configuration.
type Config struct {
	Log       LogConfig         `mapstructure:"log"`
	Handshake HandshakeConfig   `mapstructure:"handshake"`
	Extras    map[string]string `mapstructure:"extras"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// HandshakeConfig configures the bounded waits and failure policy of the
// debugger-attach handshake. Which stages run is decided by Extras.
type HandshakeConfig struct {
	Interval       string `mapstructure:"interval"`
	Timeout        string `mapstructure:"timeout"`
	Mode           string `mapstructure:"mode"`        // legacy, strict
	MarkerMode     string `mapstructure:"marker_mode"` // octal, e.g. "0700"
	TerminateGrace string `mapstructure:"terminate_grace"`
	Watch          bool   `mapstructure:"watch"`
}

// DefaultConfigYAML is written by documentation and used as the reference
// for default values.
const DefaultConfigYAML = `# debugwait configuration
log:
  level: info
  format: auto

handshake:
  # Pause between two checks of a marker, socket path or listener.
  interval: 200ms
  # Bound for every waiting stage.
  timeout: 30s
  # legacy: setup faults are logged and the handshake still reports success.
  # strict: setup faults make the handshake fail.
  mode: legacy
  # Permission bits applied to markers and the gdbserver socket path.
  marker_mode: "0700"
  # How long the helper gets between SIGTERM and SIGKILL on close.
  terminate_grace: 2s
  # Use filesystem notifications to notice markers sooner.
  watch: true

# Launch parameters, normally passed with --extra key=value.
extras: {}
#  debug_ping: "true"
#  ping_file: /data/local/tmp/debug-ping
#  pong_file: /data/local/tmp/debug-pong
#  gdbserver_socket: /data/local/tmp/debug-socket
#  gdbserver_command: gdbserver --multi +/data/local/tmp/debug-socket
#  ping_socket: "@debug-ping"
`
