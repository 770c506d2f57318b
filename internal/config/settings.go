package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hugo-lorenzo-mato/debugwait/internal/handshake"
	"github.com/hugo-lorenzo-mato/debugwait/internal/poll"
)

// HandshakeSettings converts the loaded configuration into coordinator
// settings. extraOverrides (usually from --extra flags) take precedence over
// the extras section of the config file.
func (c *Config) HandshakeSettings(extraOverrides map[string]string) (handshake.Settings, error) {
	interval, err := time.ParseDuration(c.Handshake.Interval)
	if err != nil {
		return handshake.Settings{}, fmt.Errorf("handshake.interval: %w", err)
	}
	timeout, err := time.ParseDuration(c.Handshake.Timeout)
	if err != nil {
		return handshake.Settings{}, fmt.Errorf("handshake.timeout: %w", err)
	}
	grace, err := time.ParseDuration(c.Handshake.TerminateGrace)
	if err != nil {
		return handshake.Settings{}, fmt.Errorf("handshake.terminate_grace: %w", err)
	}
	mode, err := handshake.ParseMode(c.Handshake.Mode)
	if err != nil {
		return handshake.Settings{}, err
	}
	perm, err := parseFileMode(c.Handshake.MarkerMode)
	if err != nil {
		return handshake.Settings{}, fmt.Errorf("handshake.marker_mode: %w", err)
	}

	extras := ParseExtras(MergeExtras(c.Extras, extraOverrides))

	return handshake.Settings{
		Enabled:           extras.DebugPing,
		PingMarkerPath:    extras.PingFile,
		PongMarkerPath:    extras.PongFile,
		SocketPath:        extras.GdbserverSocket,
		RendezvousAddress: extras.PingSocket,
		LaunchCommand:     extras.GdbserverCommand,
		Policy:            poll.Policy{Interval: interval, Timeout: timeout},
		Mode:              mode,
		MarkerMode:        os.FileMode(perm),
		TerminateGrace:    grace,
		Watch:             c.Handshake.Watch,
	}, nil
}
