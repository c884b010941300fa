package executor

import (
	"strings"
	"testing"

	"github.com/Harsh-BH/codr/internal/domain"
)

func TestLimitedBuffer(t *testing.T) {
	lb := limitedBuffer{limit: 5}

	if kept := lb.accept([]byte("abc")); string(kept) != "abc" {
		t.Errorf("kept %q", kept)
	}
	if kept := lb.accept([]byte("defg")); string(kept) != "de" {
		t.Errorf("kept %q", kept)
	}
	if kept := lb.accept([]byte("h")); kept != nil {
		t.Errorf("expected nothing after truncation, got %q", kept)
	}
	if lb.String() != "abcde"+outputTruncatedMsg {
		t.Errorf("unexpected content %q", lb.String())
	}
}

func TestLogFilter_SeparatesNsjailLines(t *testing.T) {
	f := &logFilter{atLineStart: true}

	out := f.feed([]byte("[I] Mode: STANDALONE_ONCE\nTraceback (most recent call last):\n[W] Child exited\n"))

	if string(out) != "Traceback (most recent call last):\n" {
		t.Errorf("unexpected program stderr %q", out)
	}
	if strings.Join(f.log, "|") != "[I] Mode: STANDALONE_ONCE|[W] Child exited" {
		t.Errorf("unexpected log lines %q", f.log)
	}
}

func TestLogFilter_HoldsPossibleLogPrefixAcrossChunks(t *testing.T) {
	f := &logFilter{atLineStart: true}

	var out []byte
	out = append(out, f.feed([]byte("["))...)
	out = append(out, f.feed([]byte("E] failed\nprog"))...)
	out = append(out, f.feed([]byte("ram error"))...)
	out = append(out, f.flush()...)

	if string(out) != "program error" {
		t.Errorf("unexpected program stderr %q", out)
	}
	if len(f.log) != 1 || f.log[0] != "[E] failed" {
		t.Errorf("unexpected log lines %q", f.log)
	}
}

func TestLogFilter_EmitsPromptWithoutNewline(t *testing.T) {
	f := &logFilter{atLineStart: true}

	out := f.feed([]byte("Enter value: "))

	if string(out) != "Enter value: " {
		t.Errorf("program output must not be held back, got %q", out)
	}
}

func TestStreamWriter_EmitsTruncationOnce(t *testing.T) {
	var chunks []string
	w := newStreamWriter(domain.StreamStdout, func(_ domain.Stream, data []byte) {
		chunks = append(chunks, string(data))
	}, 4, false)

	_, _ = w.Write([]byte("abc"))
	_, _ = w.Write([]byte("def"))
	_, _ = w.Write([]byte("ghi"))

	want := []string{"abc", "d", outputTruncatedMsg}
	if strings.Join(chunks, "|") != strings.Join(want, "|") {
		t.Errorf("chunks = %q, want %q", chunks, want)
	}
}
