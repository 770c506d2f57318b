package helper

import (
	"bytes"
	"strings"
	"sync"

	"github.com/hugo-lorenzo-mato/debugwait/internal/logging"
)

// maxLine caps a buffered partial line; longer output is logged in pieces.
const maxLine = 64 * 1024

// lineLogger is an io.Writer that logs every complete line it receives.
type lineLogger struct {
	mu     sync.Mutex
	logger *logging.Logger
	stream string
	buf    bytes.Buffer
}

func newLineLogger(logger *logging.Logger, stream string) *lineLogger {
	return &lineLogger{logger: logger, stream: stream}
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.emit(line)
	}
	if w.buf.Len() > maxLine {
		w.emit(string(w.buf.Next(w.buf.Len())))
	}
	return len(p), nil
}

// Flush logs a trailing line that had no newline.
func (w *lineLogger) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(string(w.buf.Next(w.buf.Len())))
	}
}

func (w *lineLogger) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	w.logger.Info(line, "stream", w.stream)
}
