// Package session bridges a running executor to the event publisher and the
// input channel of one job.
package session

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/events"
	"github.com/Harsh-BH/codr/internal/input"
)

// Config sizes the session queues.
type Config struct {
	// OutputBuffer bounds chunks waiting to be published. Producers block
	// when it is full.
	OutputBuffer int
	// InputBuffer bounds input chunks waiting for the process to read them.
	InputBuffer int
}

// Session owns the goroutines that move data between an executor and the
// outside world while one job runs:
//
//   - OnOutput is the producer side, called from the executor's stream goroutines;
//   - a single consumer goroutine publishes chunks in production order;
//   - an input bridge forwards subscribed input into Input() until Close.
//
// Close must be called once the executor has returned.
type Session struct {
	jobID     uuid.UUID
	publisher events.Publisher
	logger    *zap.Logger
	ctx       context.Context

	mu      sync.RWMutex
	closed  bool
	chunks  chan domain.OutputChunk
	stopped chan struct{}

	consumerDone chan struct{}

	input        chan []byte
	bridgeCancel context.CancelFunc
	bridgeDone   chan struct{}

	closeOnce sync.Once
}

// Open starts a session. When source is non-nil the input subscription is
// established before Open returns, so input sent from then on reaches the
// process.
func Open(ctx context.Context, jobID uuid.UUID, publisher events.Publisher, source input.Source, cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.OutputBuffer <= 0 {
		cfg.OutputBuffer = 256
	}
	if cfg.InputBuffer <= 0 {
		cfg.InputBuffer = 64
	}

	s := &Session{
		jobID:        jobID,
		publisher:    publisher,
		logger:       logger.With(zap.String("job_id", jobID.String())),
		ctx:          ctx,
		chunks:       make(chan domain.OutputChunk, cfg.OutputBuffer),
		stopped:      make(chan struct{}),
		consumerDone: make(chan struct{}),
		bridgeDone:   make(chan struct{}),
	}

	if source != nil {
		bridgeCtx, cancel := context.WithCancel(ctx)
		updates, err := source.Subscribe(bridgeCtx, jobID)
		if err != nil {
			cancel()
			return nil, err
		}
		s.input = make(chan []byte, cfg.InputBuffer)
		s.bridgeCancel = cancel
		go s.bridge(bridgeCtx, updates)
	} else {
		close(s.bridgeDone)
	}

	go s.consume()
	return s, nil
}

// Input is the channel the executor reads stdin chunks from. It is nil when
// the session has no input source and is closed when the session ends.
func (s *Session) Input() <-chan []byte {
	return s.input
}

// OnOutput queues a copy of data for publishing. Output produced after Close
// is dropped.
func (s *Session) OnOutput(stream domain.Stream, data []byte) {
	if len(data) == 0 {
		return
	}
	chunk := domain.OutputChunk{Stream: stream, Data: append([]byte(nil), data...)}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.chunks <- chunk:
	case <-s.stopped:
	}
}

// Close stops the producer, waits until every queued chunk was published,
// then ends the input bridge.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stopped)

		s.mu.Lock()
		s.closed = true
		close(s.chunks)
		s.mu.Unlock()

		<-s.consumerDone

		if s.bridgeCancel != nil {
			s.bridgeCancel()
		}
		<-s.bridgeDone
	})
}

func (s *Session) consume() {
	defer close(s.consumerDone)

	pending := make(map[domain.Stream][]byte, 2)
	for chunk := range s.chunks {
		data := chunk.Data
		if held := pending[chunk.Stream]; len(held) > 0 {
			data = append(held, data...)
		}
		complete, rest := splitIncompleteRune(data)
		pending[chunk.Stream] = append([]byte(nil), rest...)
		s.publish(chunk.Stream, complete)
	}

	// Whatever is still held can never be completed.
	for _, stream := range []domain.Stream{domain.StreamStdout, domain.StreamStderr} {
		s.publish(stream, pending[stream])
	}
}

func (s *Session) publish(stream domain.Stream, data []byte) {
	if len(data) == 0 {
		return
	}
	if err := s.publisher.PublishOutput(s.ctx, s.jobID, stream, string(data)); err != nil {
		s.logger.Warn("failed to publish output", zap.String("stream", string(stream)), zap.Error(err))
	}
}

// bridge forwards input until the source closes its channel, which it does
// once ctx ends. Chunks arriving after that are discarded.
func (s *Session) bridge(ctx context.Context, updates <-chan []byte) {
	defer close(s.bridgeDone)
	defer close(s.input)

	for data := range updates {
		if ctx.Err() != nil {
			continue
		}
		select {
		case s.input <- data:
		case <-ctx.Done():
		}
	}
}

// splitIncompleteRune separates a trailing, not yet complete UTF-8 sequence
// from b.
func splitIncompleteRune(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return b[:i], b[i:]
		}
		break
	}
	return b, nil
}
