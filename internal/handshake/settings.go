package handshake

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/debugwait/internal/core"
	"github.com/hugo-lorenzo-mato/debugwait/internal/marker"
	"github.com/hugo-lorenzo-mato/debugwait/internal/poll"
)

// Mode selects what happens when the handshake cannot be set up at all
// (helper spawn failure, socket bind failure, ping write failure, invalid
// settings, unexpected panic).
type Mode string

const (
	// ModeLegacy logs setup faults and still lets the caller proceed.
	ModeLegacy Mode = "legacy"
	// ModeStrict turns setup faults into a failed handshake.
	ModeStrict Mode = "strict"
)

// ParseMode parses a mode name. The empty string selects ModeLegacy.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLegacy:
		return ModeLegacy, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("unknown handshake mode %q (want legacy or strict)", s))
	}
}

// DefaultTerminateGrace is the time the helper gets between SIGTERM and
// SIGKILL.
const DefaultTerminateGrace = 2 * time.Second

// Settings selects and parameterises the handshake stages. Each optional path
// or address enables its stage; stages combine freely.
type Settings struct {
	// Enabled is the master switch (debug_ping=true). When false Connect is a
	// no-op that succeeds.
	Enabled bool

	PingMarkerPath    string
	PongMarkerPath    string
	SocketPath        string
	RendezvousAddress string
	LaunchCommand     string

	Policy         poll.Policy
	Mode           Mode
	MarkerMode     os.FileMode
	TerminateGrace time.Duration
	Watch          bool
}

// DefaultSettings returns disabled settings with default timing.
func DefaultSettings() Settings {
	return Settings{
		Policy:         poll.DefaultPolicy(),
		Mode:           ModeLegacy,
		MarkerMode:     marker.DefaultMode,
		TerminateGrace: DefaultTerminateGrace,
		Watch:          true,
	}
}

// AnyStage reports whether a marker, socket path or rendezvous stage is
// configured.
func (s Settings) AnyStage() bool {
	return s.PingMarkerPath != "" || s.PongMarkerPath != "" ||
		s.SocketPath != "" || s.RendezvousAddress != ""
}

// EnabledStages lists the stages Connect will run, in order.
func (s Settings) EnabledStages() []core.State {
	if !s.Enabled {
		return nil
	}
	var stages []core.State
	for _, st := range core.AllStages() {
		if s.runs(st) {
			stages = append(stages, st)
		}
	}
	return stages
}

func (s Settings) runs(st core.State) bool {
	switch st {
	case core.StateCleaningMarkers:
		return true
	case core.StateLaunching:
		return s.LaunchCommand != ""
	case core.StateWaitingSocketPath:
		return s.SocketPath != ""
	case core.StateWaitingRendezvous:
		return s.RendezvousAddress != ""
	case core.StateWritingPing:
		return s.PingMarkerPath != ""
	case core.StateWaitingPong:
		return s.PongMarkerPath != ""
	default:
		return false
	}
}

// Validate checks the settings of an enabled handshake.
func (s Settings) Validate() error {
	if err := s.Policy.Validate(); err != nil {
		return core.ErrValidation(core.CodeInvalidPolicy, err.Error())
	}
	if s.AnyStage() && s.LaunchCommand == "" {
		return core.ErrValidation(core.CodeMissingCommand,
			"a helper command is required when a handshake stage is enabled")
	}
	if s.TerminateGrace < 0 {
		return core.ErrValidation(core.CodeInvalidConfig, "negative terminate grace")
	}
	if _, err := ParseMode(string(s.Mode)); err != nil {
		return err
	}
	return nil
}
