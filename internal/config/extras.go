package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/hugo-lorenzo-mato/debugwait/internal/core"
)

// Launch parameter keys. Their presence, not just their value, decides which
// handshake stages run.
const (
	KeyDebugPing        = "debug_ping"
	KeyPingFile         = "ping_file"
	KeyPongFile         = "pong_file"
	KeyGdbserverSocket  = "gdbserver_socket"
	KeyGdbserverCommand = "gdbserver_command"
	KeyPingSocket       = "ping_socket"
)

// KnownExtraKeys lists every launch parameter key understood by the handshake.
func KnownExtraKeys() []string {
	return []string{
		KeyDebugPing,
		KeyPingFile,
		KeyPongFile,
		KeyGdbserverSocket,
		KeyGdbserverCommand,
		KeyPingSocket,
	}
}

// Extras is the typed view of the launch parameters.
type Extras struct {
	DebugPing        bool
	DebugPingValue   string // raw debug_ping, kept to explain a disabled handshake
	PingFile         string
	PongFile         string
	GdbserverSocket  string
	GdbserverCommand string
	PingSocket       string
}

// ParseExtras maps raw launch parameters to Extras. debug_ping must be the
// literal "true"; empty values count as absent.
func ParseExtras(m map[string]string) Extras {
	get := func(key string) string {
		return strings.TrimSpace(m[key])
	}
	return Extras{
		DebugPing:        get(KeyDebugPing) == "true",
		DebugPingValue:   get(KeyDebugPing),
		PingFile:         get(KeyPingFile),
		PongFile:         get(KeyPongFile),
		GdbserverSocket:  get(KeyGdbserverSocket),
		GdbserverCommand: get(KeyGdbserverCommand),
		PingSocket:       get(KeyPingSocket),
	}
}

// ParseExtraPairs parses key=value arguments into a map. Later pairs win.
func ParseExtraPairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, core.ErrValidation(core.CodeMalformedExtra,
				fmt.Sprintf("expected key=value, got %q", pair))
		}
		out[strings.ToLower(key)] = value
	}
	return out, nil
}

// MergeExtras returns base overlaid with override.
func MergeExtras(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[strings.ToLower(k)] = v
	}
	for k, v := range override {
		out[strings.ToLower(k)] = v
	}
	return out
}

// UnknownExtraKeys returns keys of m that the handshake ignores, sorted.
func UnknownExtraKeys(m map[string]string) []string {
	known := make(map[string]bool)
	for _, k := range KnownExtraKeys() {
		known[k] = true
	}
	var unknown []string
	for k := range m {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// Issues describes launch parameter combinations that will make the
// handshake fault at run time. It never blocks loading.
func (e Extras) Issues() []string {
	if !e.DebugPing {
		if e.DebugPingValue != "" {
			return []string{fmt.Sprintf("debug_ping is %q, only \"true\" enables the handshake", e.DebugPingValue)}
		}
		return nil
	}
	var issues []string
	anyStage := e.PingFile != "" || e.PongFile != "" || e.GdbserverSocket != "" || e.PingSocket != ""
	if e.GdbserverCommand == "" {
		if anyStage {
			issues = append(issues, "gdbserver_command is required when a handshake stage is enabled")
		} else {
			issues = append(issues, "debug_ping is set but no stage or gdbserver_command is configured")
		}
	}
	if e.PongFile != "" && e.PingFile == "" {
		issues = append(issues, "pong_file without ping_file: the peer has nothing to react to")
	}
	return issues
}

// SuggestExtraKey returns the known key that best matches an unknown one, or
// "" when nothing is close.
func SuggestExtraKey(key string) string {
	matches := fuzzy.Find(strings.ToLower(key), KnownExtraKeys())
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}
