package config

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hugo-lorenzo-mato/debugwait/internal/core"
)

func TestParseExtras(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]string
		want Extras
	}{
		{
			name: "empty",
			in:   nil,
			want: Extras{},
		},
		{
			name: "debug_ping must be literal true",
			in:   map[string]string{KeyDebugPing: "yes", KeyPingFile: "/p"},
			want: Extras{DebugPingValue: "yes", PingFile: "/p"},
		},
		{
			name: "all keys",
			in: map[string]string{
				KeyDebugPing:        "true",
				KeyPingFile:         "/tmp/ping",
				KeyPongFile:         "/tmp/pong",
				KeyGdbserverSocket:  "/tmp/sock",
				KeyGdbserverCommand: "gdbserver --multi +/tmp/sock",
				KeyPingSocket:       "@ping",
			},
			want: Extras{
				DebugPing:        true,
				DebugPingValue:   "true",
				PingFile:         "/tmp/ping",
				PongFile:         "/tmp/pong",
				GdbserverSocket:  "/tmp/sock",
				GdbserverCommand: "gdbserver --multi +/tmp/sock",
				PingSocket:       "@ping",
			},
		},
		{
			name: "blank values are absent",
			in:   map[string]string{KeyDebugPing: "true", KeyPingFile: "  "},
			want: Extras{DebugPing: true, DebugPingValue: "true"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseExtras(tt.in); got != tt.want {
				t.Errorf("ParseExtras() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseExtraPairs(t *testing.T) {
	got, err := ParseExtraPairs([]string{
		"debug_ping=true",
		"GDBSERVER_COMMAND=gdbserver --opt=a=b :5039",
		"ping_file=/a",
		"ping_file=/b",
		"pong_file=",
	})
	if err != nil {
		t.Fatalf("ParseExtraPairs() error = %v", err)
	}
	want := map[string]string{
		"debug_ping":        "true",
		"gdbserver_command": "gdbserver --opt=a=b :5039",
		"ping_file":         "/b",
		"pong_file":         "",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseExtraPairs() = %v, want %v", got, want)
	}

	for _, bad := range []string{"novalue", "=value", " =x"} {
		_, err := ParseExtraPairs([]string{bad})
		if err == nil {
			t.Errorf("ParseExtraPairs(%q) expected error", bad)
			continue
		}
		if !core.IsCategory(err, core.ErrCatValidation) {
			t.Errorf("ParseExtraPairs(%q) error category = %s", bad, core.GetCategory(err))
		}
	}
}

func TestMergeExtras(t *testing.T) {
	got := MergeExtras(
		map[string]string{"Ping_File": "/a", "pong_file": "/p"},
		map[string]string{"ping_file": "/b"},
	)
	want := map[string]string{"ping_file": "/b", "pong_file": "/p"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeExtras() = %v, want %v", got, want)
	}
}

func TestUnknownExtraKeys(t *testing.T) {
	got := UnknownExtraKeys(map[string]string{
		KeyPingFile: "/a",
		"zeta":      "1",
		"alpha":     "2",
	})
	want := []string{"alpha", "zeta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UnknownExtraKeys() = %v, want %v", got, want)
	}
}

func TestExtras_Issues(t *testing.T) {
	tests := []struct {
		name    string
		extras  Extras
		wantSub string
	}{
		{"disabled", Extras{PingFile: "/p"}, ""},
		{"debug_ping not literal true", Extras{DebugPingValue: "1", PingFile: "/p"}, `debug_ping is "1"`},
		{"complete", Extras{DebugPing: true, PingFile: "/p", PongFile: "/q", GdbserverCommand: "x"}, ""},
		{"missing command", Extras{DebugPing: true, PingFile: "/p"}, "gdbserver_command is required"},
		{"nothing to do", Extras{DebugPing: true}, "no stage"},
		{"pong without ping", Extras{DebugPing: true, PongFile: "/q", GdbserverCommand: "x"}, "pong_file without ping_file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := tt.extras.Issues()
			if tt.wantSub == "" {
				if len(issues) != 0 {
					t.Errorf("Issues() = %v, want none", issues)
				}
				return
			}
			joined := strings.Join(issues, "\n")
			if !strings.Contains(joined, tt.wantSub) {
				t.Errorf("Issues() = %v, want one containing %q", issues, tt.wantSub)
			}
		})
	}
}

func TestSuggestExtraKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"pong_fil", KeyPongFile},
		{"gdbserver_cmd", KeyGdbserverCommand},
		{"PING_SOCK", KeyPingSocket},
		{"xyz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SuggestExtraKey(tt.in); got != tt.want {
				t.Errorf("SuggestExtraKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
