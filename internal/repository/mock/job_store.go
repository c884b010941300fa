package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/repository"
)

// Ensure JobStore implements repository.JobStore.
var _ repository.JobStore = (*JobStore)(nil)

// JobStore is an in-memory job store for testing. It enforces the same
// transition rules as the Redis store.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job

	// Transitions records every successful status change in order.
	Transitions []domain.JobStatus

	// Hook functions for injecting errors
	CreateFunc         func(ctx context.Context, code, language, filename string) (uuid.UUID, error)
	GetFunc            func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	MarkProcessingFunc func(ctx context.Context, id uuid.UUID) error
	MarkCompletedFunc  func(ctx context.Context, id uuid.UUID, result *domain.ExecutionResult) error
	MarkFailedFunc     func(ctx context.Context, id uuid.UUID, message string, result *domain.ExecutionResult) error

	// OnTransition, if set, is called after a successful status change.
	OnTransition func(id uuid.UUID, status domain.JobStatus)
}

// NewJobStore creates an empty in-memory store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

// Put inserts a job snapshot directly (for test setup).
func (m *JobStore) Put(job *domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
}

// Delete drops a job, emulating expiry.
func (m *JobStore) Delete(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

func (m *JobStore) Create(ctx context.Context, code, language, filename string) (uuid.UUID, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, code, language, filename)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id] = &domain.Job{
		ID:        id,
		Code:      code,
		Language:  language,
		Filename:  filename,
		Status:    domain.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	return id, nil
}

func (m *JobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *JobStore) GetStatus(ctx context.Context, id uuid.UUID) (domain.JobStatus, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

func (m *JobStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.jobs[id]
	return ok, nil
}

func (m *JobStore) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	if m.MarkProcessingFunc != nil {
		return m.MarkProcessingFunc(ctx, id)
	}
	return m.transition(id, domain.StatusProcessing, func(*domain.Job) {})
}

func (m *JobStore) MarkCompleted(ctx context.Context, id uuid.UUID, result *domain.ExecutionResult) error {
	if m.MarkCompletedFunc != nil {
		return m.MarkCompletedFunc(ctx, id, result)
	}
	return m.transition(id, domain.StatusCompleted, func(j *domain.Job) {
		now := time.Now().UTC()
		j.CompletedAt = &now
		j.Result = result
	})
}

func (m *JobStore) MarkFailed(ctx context.Context, id uuid.UUID, message string, result *domain.ExecutionResult) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id, message, result)
	}
	return m.transition(id, domain.StatusFailed, func(j *domain.Job) {
		now := time.Now().UTC()
		j.CompletedAt = &now
		j.Result = result
		j.Error = message
	})
}

func (m *JobStore) transition(id uuid.UUID, next domain.JobStatus, apply func(*domain.Job)) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return domain.ErrJobNotFound
	}
	if !job.Status.CanTransitionTo(next) {
		m.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	job.Status = next
	apply(job)
	m.Transitions = append(m.Transitions, next)
	hook := m.OnTransition
	m.mu.Unlock()

	if hook != nil {
		hook(id, next)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Archive
// ---------------------------------------------------------------------------

// Ensure JobArchive implements repository.JobArchive.
var _ repository.JobArchive = (*JobArchive)(nil)

// JobArchive is an in-memory archive for testing.
type JobArchive struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job

	SaveFunc func(ctx context.Context, job *domain.Job) error
}

// NewJobArchive creates an empty in-memory archive.
func NewJobArchive() *JobArchive {
	return &JobArchive{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (a *JobArchive) Save(ctx context.Context, job *domain.Job) error {
	if a.SaveFunc != nil {
		return a.SaveFunc(ctx, job)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.jobs[job.ID]; !ok {
		cp := *job
		a.jobs[job.ID] = &cp
	}
	return nil
}

func (a *JobArchive) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	job, ok := a.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

// Len returns the number of archived jobs (for test assertions).
func (a *JobArchive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.jobs)
}
