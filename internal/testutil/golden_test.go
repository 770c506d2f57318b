package testutil_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/debugwait/internal/testutil"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"CRLF to LF", "line1\r\nline2\r\n", "line1\nline2"},
		{"trailing whitespace", "line1   \nline2\t\n", "line1\nline2"},
		{"trailing newlines", "line1\nline2\n\n\n", "line1\nline2"},
		{"empty string", "", ""},
		{"already clean", "line1\nline2", "line1\nline2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestScrubbers(t *testing.T) {
	in := "run 123e4567-e89b-12d3-a456-426614174000 took 1.5s (interval 200ms) in /tmp/work"
	got := testutil.ScrubPaths(testutil.ScrubDurations(testutil.ScrubUUIDs(in)), "/tmp/work")
	want := "run [UUID] took [DURATION] (interval [DURATION]) in [WORKDIR]"
	if got != want {
		t.Errorf("scrubbed = %q, want %q", got, want)
	}
}

func TestGolden_AssertString(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sample.golden"), []byte("a\nb\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	testutil.NewGolden(t, dir).AssertString("sample", "a\r\nb")
}

func TestSocketPath(t *testing.T) {
	p := testutil.SocketPath(t, "rdv.sock")
	if len(p) > 100 {
		t.Errorf("socket path too long: %d bytes", len(p))
	}
	testutil.AssertExists(t, filepath.Dir(p))
	testutil.AssertNotExists(t, p)
}

func TestCreateAfter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pong")
	done := testutil.CreateAfter(t, path, "x", 20*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond, "pong file never appeared")
	<-done
}
