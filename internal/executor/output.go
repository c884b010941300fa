package executor

import (
	"bytes"
	"strings"
	"sync"

	"github.com/Harsh-BH/codr/internal/domain"
)

const (
	// maxOutputBytes caps stdout/stderr to prevent memory exhaustion.
	maxOutputBytes = 64 * 1024 // 64 KB

	// outputTruncatedMsg is appended when output exceeds the limit.
	outputTruncatedMsg = "\n... output truncated (64 KB limit) ..."
)

// limitedBuffer is a bytes.Buffer that stops accepting writes after a limit.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

// accept stores as much of p as fits and returns the stored prefix.
func (lb *limitedBuffer) accept(p []byte) []byte {
	if lb.truncated {
		return nil
	}
	remaining := lb.limit - lb.buf.Len()
	if remaining <= 0 {
		lb.truncated = true
		return nil
	}
	if len(p) > remaining {
		lb.truncated = true
		p = p[:remaining]
	}
	lb.buf.Write(p)
	return p
}

func (lb *limitedBuffer) String() string {
	if lb.truncated {
		return lb.buf.String() + outputTruncatedMsg
	}
	return lb.buf.String()
}

// streamWriter is the io.Writer attached to a process stream. It forwards
// chunks to the output callback as they arrive and keeps a capped copy for
// the final result.
type streamWriter struct {
	mu      sync.Mutex
	stream  domain.Stream
	emit    OutputFunc
	capture limitedBuffer
	filter  *logFilter
}

func newStreamWriter(stream domain.Stream, emit OutputFunc, limit int, separateLogs bool) *streamWriter {
	w := &streamWriter{stream: stream, emit: emit, capture: limitedBuffer{limit: limit}}
	if separateLogs {
		w.filter = &logFilter{atLineStart: true}
	}
	return w
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data := p
	if w.filter != nil {
		data = w.filter.feed(p)
	}
	w.forward(data)
	return len(p), nil
}

// Flush releases output held back by the log filter.
func (w *streamWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.filter != nil {
		w.forward(w.filter.flush())
	}
}

func (w *streamWriter) forward(data []byte) {
	if len(data) == 0 {
		return
	}
	wasTruncated := w.capture.truncated
	if kept := w.capture.accept(data); len(kept) > 0 {
		w.emit(w.stream, kept)
	}
	if !wasTruncated && w.capture.truncated {
		w.emit(w.stream, []byte(outputTruncatedMsg))
	}
}

func (w *streamWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.capture.String()
}

// Log returns the nsjail log lines seen on this stream.
func (w *streamWriter) Log() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.filter == nil {
		return ""
	}
	return strings.Join(w.filter.log, "\n")
}

// nsjailPrefixes are the bracketed tags nsjail puts in front of its log lines.
var nsjailPrefixes = [][]byte{[]byte("[I]"), []byte("[W]"), []byte("[E]"), []byte("[F]"), []byte("[D]")}

// logFilter splits nsjail log lines out of a stderr byte stream. A partial
// line is held back only while it could still turn out to be a log line.
type logFilter struct {
	pending     []byte
	atLineStart bool
	log         []string
}

func (f *logFilter) feed(p []byte) []byte {
	data := p
	if len(f.pending) > 0 {
		data = append(f.pending, p...)
		f.pending = nil
	}

	var out []byte
	for len(data) > 0 {
		idx := bytes.IndexByte(data, '\n')
		if !f.atLineStart {
			if idx < 0 {
				return append(out, data...)
			}
			out = append(out, data[:idx+1]...)
			data = data[idx+1:]
			f.atLineStart = true
			continue
		}

		if idx < 0 {
			if mayBeLogLine(data) {
				f.pending = append([]byte(nil), data...)
				return out
			}
			f.atLineStart = false
			return append(out, data...)
		}

		line := data[:idx+1]
		if isNsjailLogLine(line) {
			f.log = append(f.log, string(bytes.TrimRight(line, "\r\n")))
		} else {
			out = append(out, line...)
		}
		data = data[idx+1:]
	}
	return out
}

func (f *logFilter) flush() []byte {
	pending := f.pending
	f.pending = nil
	if len(pending) == 0 {
		return nil
	}
	if isNsjailLogLine(pending) {
		f.log = append(f.log, string(pending))
		return nil
	}
	f.atLineStart = false
	return pending
}

// isNsjailLogLine returns true if the line looks like an nsjail log entry.
func isNsjailLogLine(line []byte) bool {
	trimmed := bytes.TrimLeft(line, " \t")
	for _, prefix := range nsjailPrefixes {
		if bytes.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func mayBeLogLine(partial []byte) bool {
	trimmed := bytes.TrimLeft(partial, " \t")
	if len(trimmed) == 0 {
		return true
	}
	for _, prefix := range nsjailPrefixes {
		if len(trimmed) < len(prefix) {
			if bytes.HasPrefix(prefix, trimmed) {
				return true
			}
		} else if bytes.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
