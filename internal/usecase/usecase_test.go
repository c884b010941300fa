package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mockdispatch "github.com/Harsh-BH/codr/internal/dispatch/mock"
	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/executor"
	"github.com/Harsh-BH/codr/internal/input"
	mockrepo "github.com/Harsh-BH/codr/internal/repository/mock"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeExecutor struct {
	calls atomic.Int32
	run   func(ctx context.Context, req *domain.ExecutionRequest, onOutput executor.OutputFunc, in <-chan []byte) (*domain.ExecutionResult, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, req *domain.ExecutionRequest, onOutput executor.OutputFunc, in <-chan []byte) (*domain.ExecutionResult, error) {
	f.calls.Add(1)
	return f.run(ctx, req, onOutput, in)
}

func printing(text string, exitCode int) *fakeExecutor {
	return &fakeExecutor{run: func(_ context.Context, _ *domain.ExecutionRequest, onOutput executor.OutputFunc, _ <-chan []byte) (*domain.ExecutionResult, error) {
		onOutput(domain.StreamStdout, []byte(text))
		return &domain.ExecutionResult{
			Success:       exitCode == 0,
			Stdout:        text,
			ExitCode:      exitCode,
			ExecutionTime: 0.25,
		}, nil
	}}
}

// recorder collects events and store transitions in one ordered log.
type recorder struct {
	mu     sync.Mutex
	log    []string
	events []domain.Event
}

func (r *recorder) add(ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.log = append(r.log, "event:"+string(ev.Type))
	return nil
}

func (r *recorder) PublishOutput(_ context.Context, jobID uuid.UUID, stream domain.Stream, text string) error {
	return r.add(domain.OutputEvent(jobID, stream, text))
}

func (r *recorder) PublishComplete(_ context.Context, jobID uuid.UUID, exitCode int, executionTime float64) error {
	return r.add(domain.CompleteEvent(jobID, exitCode, executionTime))
}

func (r *recorder) PublishError(_ context.Context, jobID uuid.UUID, message string) error {
	return r.add(domain.ErrorEvent(jobID, message))
}

func (r *recorder) transition(_ uuid.UUID, status domain.JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "store:"+string(status))
}

func (r *recorder) snapshot() ([]string, []domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...), append([]domain.Event(nil), r.events...)
}

type fakeValidator struct {
	verdict domain.Verdict
	calls   int
}

func (v *fakeValidator) Validate(context.Context, string, string) domain.Verdict {
	v.calls++
	return v.verdict
}

type harness struct {
	store   *mockrepo.JobStore
	archive *mockrepo.JobArchive
	rec     *recorder
	broker  *input.Broker
	uc      *ExecuteJobUsecase
}

func newHarness(t *testing.T, execs map[domain.Language]executor.Executor, development bool) *harness {
	t.Helper()
	h := &harness{
		store:   mockrepo.NewJobStore(),
		archive: mockrepo.NewJobArchive(),
		rec:     &recorder{},
		broker:  input.NewBroker(8),
	}
	h.store.OnTransition = h.rec.transition
	h.uc = NewExecuteJobUsecase(
		h.store,
		h.archive,
		executor.NewRegistry(execs),
		h.rec,
		h.broker,
		ExecuteConfig{Development: development},
		zap.NewNop(),
	)
	return h
}

func (h *harness) queue(t *testing.T, code, language string) uuid.UUID {
	t.Helper()
	id, err := h.store.Create(context.Background(), code, language, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func (h *harness) job(t *testing.T, id uuid.UUID) *domain.Job {
	t.Helper()
	job, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return job
}

// ---------------------------------------------------------------------------
// ExecuteJob
// ---------------------------------------------------------------------------

func TestExecuteJob_Completed(t *testing.T) {
	exec := printing("Hello\n", 0)
	h := newHarness(t, map[domain.Language]executor.Executor{domain.LangPython: exec}, false)
	id := h.queue(t, "print('Hello')", "python")

	if err := h.uc.Execute(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := h.job(t, id)
	if job.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if job.Result == nil || !job.Result.Success || job.Result.Stdout != "Hello\n" {
		t.Errorf("unexpected result: %+v", job.Result)
	}
	if job.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	log, events := h.rec.snapshot()
	want := []string{"store:processing", "event:output", "store:completed", "event:complete"}
	if strings.Join(log, ",") != strings.Join(want, ",") {
		t.Errorf("expected order %v, got %v", want, log)
	}
	if events[0].Data != "Hello\n" || events[0].Stream != domain.StreamStdout {
		t.Errorf("unexpected output event: %+v", events[0])
	}
	last := events[len(events)-1]
	if *last.ExitCode != 0 || *last.ExecutionTime != 0.25 {
		t.Errorf("unexpected completion event: %+v", last)
	}
	if h.archive.Len() != 1 {
		t.Errorf("expected job to be archived, archive has %d", h.archive.Len())
	}
}

func TestExecuteJob_NonzeroExitIsCompleted(t *testing.T) {
	exec := printing("boom\n", 3)
	h := newHarness(t, map[domain.Language]executor.Executor{domain.LangC: exec}, false)
	id := h.queue(t, "int main(void){return 3;}", "c")

	if err := h.uc.Execute(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := h.job(t, id)
	if job.Status != domain.StatusCompleted {
		t.Fatalf("a nonzero exit must complete the job, got %s", job.Status)
	}
	if job.Result.Success || job.Result.ExitCode != 3 {
		t.Errorf("expected failing result with exit 3, got %+v", job.Result)
	}

	_, events := h.rec.snapshot()
	last := events[len(events)-1]
	if last.Type != domain.EventComplete || *last.ExitCode != 3 {
		t.Errorf("expected complete event with exit 3, got %+v", last)
	}
}

func TestExecuteJob_UnknownLanguageFails(t *testing.T) {
	exec := printing("", 0)
	h := newHarness(t, map[domain.Language]executor.Executor{domain.LangPython: exec}, false)
	id := h.queue(t, "fn main() {}", "rust")

	if err := h.uc.Execute(context.Background(), id); err != nil {
		t.Fatalf("a recorded failure is not an error, got %v", err)
	}
	if exec.calls.Load() != 0 {
		t.Error("executor must not run")
	}

	job := h.job(t, id)
	if job.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	want := domain.FailureResult("Execution failed")
	if *job.Result != *want {
		t.Errorf("expected %+v, got %+v", want, job.Result)
	}
	if job.Error != "Execution failed" {
		t.Errorf("expected sanitized error, got %q", job.Error)
	}

	log, events := h.rec.snapshot()
	wantLog := []string{"store:processing", "store:failed", "event:error"}
	if strings.Join(log, ",") != strings.Join(wantLog, ",") {
		t.Errorf("expected order %v, got %v", wantLog, log)
	}
	if events[0].Message != "Execution failed" {
		t.Errorf("expected sanitized event message, got %q", events[0].Message)
	}
}

func TestExecuteJob_DevelopmentKeepsMessage(t *testing.T) {
	exec := &fakeExecutor{run: func(context.Context, *domain.ExecutionRequest, executor.OutputFunc, <-chan []byte) (*domain.ExecutionResult, error) {
		return nil, errors.New("nsjail: not found")
	}}
	h := newHarness(t, map[domain.Language]executor.Executor{domain.LangPython: exec}, true)
	id := h.queue(t, "print(1)", "python")

	if err := h.uc.Execute(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := h.job(t, id)
	if job.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if !strings.Contains(job.Result.Stderr, "nsjail: not found") {
		t.Errorf("expected raw message in development, got %q", job.Result.Stderr)
	}
	if job.Result.ExitCode != -1 || job.Result.ExecutionTime != 0 || job.Result.Stdout != "" {
		t.Errorf("unexpected failure shape: %+v", job.Result)
	}
}

func TestExecuteJob_ExecutorPanicFails(t *testing.T) {
	exec := &fakeExecutor{run: func(context.Context, *domain.ExecutionRequest, executor.OutputFunc, <-chan []byte) (*domain.ExecutionResult, error) {
		panic("unexpected")
	}}
	h := newHarness(t, map[domain.Language]executor.Executor{domain.LangPython: exec}, false)
	id := h.queue(t, "print(1)", "python")

	if err := h.uc.Execute(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job := h.job(t, id); job.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
}

func TestExecuteJob_MissingJob(t *testing.T) {
	h := newHarness(t, map[domain.Language]executor.Executor{}, false)
	id := uuid.New()

	err := h.uc.Execute(context.Background(), id)
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	_, events := h.rec.snapshot()
	if len(events) != 1 || events[0].Type != domain.EventError || events[0].Message != "Job not found" {
		t.Errorf("expected one not-found error event, got %+v", events)
	}
}

func TestExecuteJob_DuplicateDeliverySkipped(t *testing.T) {
	exec := printing("x", 0)
	h := newHarness(t, map[domain.Language]executor.Executor{domain.LangPython: exec}, false)
	id := h.queue(t, "print(1)", "python")

	if err := h.uc.Execute(context.Background(), id); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := h.uc.Execute(context.Background(), id); err != nil {
		t.Fatalf("duplicate delivery must be skipped silently, got %v", err)
	}
	if exec.calls.Load() != 1 {
		t.Errorf("expected 1 execution, got %d", exec.calls.Load())
	}
	if h.store.Transitions[len(h.store.Transitions)-1] != domain.StatusCompleted {
		t.Errorf("status regressed: %v", h.store.Transitions)
	}
}

func TestExecuteJob_UnwritableCompletionFails(t *testing.T) {
	exec := printing("ok", 0)
	h := newHarness(t, map[domain.Language]executor.Executor{domain.LangPython: exec}, false)
	h.store.MarkCompletedFunc = func(context.Context, uuid.UUID, *domain.ExecutionResult) error {
		return domain.ErrStoreUnavailable
	}
	id := h.queue(t, "print(1)", "python")

	if err := h.uc.Execute(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job := h.job(t, id); job.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	_, events := h.rec.snapshot()
	if last := events[len(events)-1]; last.Type != domain.EventError {
		t.Errorf("expected trailing error event, got %+v", last)
	}
}

func TestExecuteJob_StoreUnavailable(t *testing.T) {
	exec := printing("ok", 0)
	h := newHarness(t, map[domain.Language]executor.Executor{domain.LangPython: exec}, false)
	h.store.MarkCompletedFunc = func(context.Context, uuid.UUID, *domain.ExecutionResult) error {
		return domain.ErrStoreUnavailable
	}
	h.store.MarkFailedFunc = func(context.Context, uuid.UUID, string, *domain.ExecutionResult) error {
		return domain.ErrStoreUnavailable
	}
	id := h.queue(t, "print(1)", "python")

	err := h.uc.Execute(context.Background(), id)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	_, events := h.rec.snapshot()
	if last := events[len(events)-1]; last.Type != domain.EventError {
		t.Errorf("expected trailing error event, got %+v", last)
	}
}

func TestExecuteJob_ArchiveFailureIgnored(t *testing.T) {
	exec := printing("ok", 0)
	h := newHarness(t, map[domain.Language]executor.Executor{domain.LangPython: exec}, false)
	h.archive.SaveFunc = func(context.Context, *domain.Job) error {
		return errors.New("postgres down")
	}
	id := h.queue(t, "print(1)", "python")

	if err := h.uc.Execute(context.Background(), id); err != nil {
		t.Fatalf("archive failures must not fail the job, got %v", err)
	}
	if job := h.job(t, id); job.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
}

func TestExecuteJob_CancelledWhileRunningIsRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := &fakeExecutor{run: func(ctx context.Context, _ *domain.ExecutionRequest, _ executor.OutputFunc, _ <-chan []byte) (*domain.ExecutionResult, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := newHarness(t, map[domain.Language]executor.Executor{domain.LangPython: exec}, false)
	// The mock store ignores ctx; fail like a real store would.
	h.store.MarkFailedFunc = func(ctx context.Context, id uuid.UUID, message string, result *domain.ExecutionResult) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.store.MarkFailedFunc = nil
		return h.store.MarkFailed(ctx, id, message, result)
	}
	id := h.queue(t, "print(1)", "python")

	if err := h.uc.Execute(ctx, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job := h.job(t, id); job.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
}

func TestExecuteJob_InputReachesProcess(t *testing.T) {
	exec := &fakeExecutor{run: func(ctx context.Context, _ *domain.ExecutionRequest, onOutput executor.OutputFunc, in <-chan []byte) (*domain.ExecutionResult, error) {
		select {
		case data := <-in:
			onOutput(domain.StreamStdout, data)
			return &domain.ExecutionResult{Success: true, Stdout: string(data)}, nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("no input")
		}
	}}
	h := newHarness(t, map[domain.Language]executor.Executor{domain.LangPython: exec}, true)
	id := h.queue(t, "print(input())", "python")

	go func() {
		for i := 0; i < 200; i++ {
			if ok, _ := h.broker.Send(context.Background(), id, []byte("Ada\n")); ok {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	if err := h.uc.Execute(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job := h.job(t, id)
	if job.Status != domain.StatusCompleted || job.Result.Stdout != "Ada\n" {
		t.Fatalf("expected echoed input, got %s %+v", job.Status, job.Result)
	}

	// The input subscription is gone once the job ends.
	if ok, _ := h.broker.Send(context.Background(), id, []byte("late")); ok {
		t.Error("input after teardown must be dropped")
	}
}

// ---------------------------------------------------------------------------
// SubmitJob
// ---------------------------------------------------------------------------

func TestSubmitJob_Success(t *testing.T) {
	store := mockrepo.NewJobStore()
	pub := mockdispatch.NewPublisher()
	v := &fakeValidator{verdict: domain.Accept()}
	uc := NewSubmitJobUsecase(v, store, pub, 0, zap.NewNop())

	resp, err := uc.Execute(context.Background(), &domain.SubmitRequest{Code: "console.log(1)", Language: "js"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != domain.StatusQueued {
		t.Errorf("expected queued, got %s", resp.Status)
	}

	job, err := store.Get(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("job not stored: %v", err)
	}
	if job.Language != "javascript" {
		t.Errorf("expected canonical language, got %s", job.Language)
	}
	if len(pub.Published) != 1 || pub.Published[0] != resp.JobID {
		t.Errorf("expected job to be dispatched, got %v", pub.Published)
	}
}

func TestSubmitJob_RejectedCreatesNoJob(t *testing.T) {
	store := mockrepo.NewJobStore()
	created := false
	store.CreateFunc = func(context.Context, string, string, string) (uuid.UUID, error) {
		created = true
		return uuid.New(), nil
	}
	pub := mockdispatch.NewPublisher()
	v := &fakeValidator{verdict: domain.Reject("Dangerous function call: eval('1+1')")}
	uc := NewSubmitJobUsecase(v, store, pub, 0, zap.NewNop())

	_, err := uc.Execute(context.Background(), &domain.SubmitRequest{Code: "eval('1+1')", Language: "python"})
	if !errors.Is(err, domain.ErrValidationRejected) {
		t.Fatalf("expected ErrValidationRejected, got %v", err)
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Verdict.Reason == "" {
		t.Errorf("expected the verdict to travel with the error, got %v", err)
	}
	if created || len(pub.Published) != 0 {
		t.Error("rejected submissions must not create or dispatch a job")
	}
}

func TestSubmitJob_InputErrors(t *testing.T) {
	tests := []struct {
		name string
		req  domain.SubmitRequest
		want error
	}{
		{"unknown language", domain.SubmitRequest{Code: "puts 1", Language: "ruby"}, domain.ErrUnknownLanguage},
		{"empty code", domain.SubmitRequest{Code: "  \n", Language: "python"}, domain.ErrEmptySourceCode},
		{"too large", domain.SubmitRequest{Code: strings.Repeat("x", 65), Language: "python"}, domain.ErrPayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeValidator{verdict: domain.Accept()}
			uc := NewSubmitJobUsecase(v, mockrepo.NewJobStore(), mockdispatch.NewPublisher(), 64, zap.NewNop())
			_, err := uc.Execute(context.Background(), &tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if v.calls != 0 {
				t.Error("validator should not run for malformed requests")
			}
		})
	}
}

func TestSubmitJob_PublishFailure(t *testing.T) {
	store := mockrepo.NewJobStore()
	var createdID uuid.UUID
	pub := mockdispatch.NewPublisher()
	pub.PublishFn = func(_ context.Context, id uuid.UUID) error {
		createdID = id
		return errors.New("connection refused")
	}
	uc := NewSubmitJobUsecase(&fakeValidator{verdict: domain.Accept()}, store, pub, 0, zap.NewNop())

	_, err := uc.Execute(context.Background(), &domain.SubmitRequest{Code: "print(1)", Language: "python"})
	if !errors.Is(err, domain.ErrPublishFailed) {
		t.Fatalf("expected ErrPublishFailed, got %v", err)
	}
	status, err := store.GetStatus(context.Background(), createdID)
	if err != nil || status != domain.StatusQueued {
		t.Errorf("expected job to stay queued, got %s (%v)", status, err)
	}
}

// ---------------------------------------------------------------------------
// GetJob / SendInput
// ---------------------------------------------------------------------------

func TestGetJob(t *testing.T) {
	store := mockrepo.NewJobStore()
	archive := mockrepo.NewJobArchive()
	uc := NewGetJobUsecase(store, archive, zap.NewNop())

	id, _ := store.Create(context.Background(), "print(1)", "python", "")
	job, err := uc.Execute(context.Background(), id)
	if err != nil || job.ID != id {
		t.Fatalf("unexpected: %v %v", job, err)
	}
	status, err := uc.Status(context.Background(), id)
	if err != nil || status != domain.StatusQueued {
		t.Errorf("expected queued, got %s (%v)", status, err)
	}

	if _, err := uc.Execute(context.Background(), uuid.New()); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := uc.History(context.Background(), id); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("unarchived job should not be found in history, got %v", err)
	}

	noArchive := NewGetJobUsecase(store, nil, zap.NewNop())
	if noArchive.HasArchive() {
		t.Error("expected no archive")
	}
	if _, err := noArchive.History(context.Background(), id); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestSendInput(t *testing.T) {
	store := mockrepo.NewJobStore()
	broker := input.NewBroker(4)
	uc := NewSendInputUsecase(store, broker, zap.NewNop())

	running := uuid.New()
	store.Put(&domain.Job{ID: running, Status: domain.StatusProcessing})
	queued := uuid.New()
	store.Put(&domain.Job{ID: queued, Status: domain.StatusQueued})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := broker.Subscribe(ctx, running)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	delivered, err := uc.Execute(context.Background(), running, []byte("42\n"))
	if err != nil || !delivered {
		t.Fatalf("expected delivery, got %v %v", delivered, err)
	}
	if got := string(<-ch); got != "42\n" {
		t.Errorf("expected 42, got %q", got)
	}

	delivered, err = uc.Execute(context.Background(), queued, []byte("x"))
	if err != nil || delivered {
		t.Errorf("input to a queued job must be ignored, got %v %v", delivered, err)
	}

	if _, err := uc.Execute(context.Background(), uuid.New(), []byte("x")); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
