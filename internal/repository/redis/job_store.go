package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/repository"
)

var _ repository.JobStore = (*redisJobStore)(nil)

const jobKeyPrefix = "codr:job:"

// Hash fields of a job record.
const (
	fieldJobID       = "job_id"
	fieldCode        = "code"
	fieldLanguage    = "language"
	fieldFilename    = "filename"
	fieldStatus      = "status"
	fieldCreatedAt   = "created_at"
	fieldCompletedAt = "completed_at"
	fieldResult      = "result"
	fieldError       = "error"
)

// Transition scripts return 0 when the key is missing, -1 when the current
// status does not allow the move and 1 on success.
var (
	markProcessingScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 0 end
if status ~= 'queued' then return -1 end
redis.call('HSET', KEYS[1], 'status', 'processing')
return 1
`)

	markTerminalScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 0 end
if status ~= 'processing' then return -1 end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'completed_at', ARGV[2], 'result', ARGV[3], 'error', ARGV[4])
return 1
`)
)

type redisJobStore struct {
	client    *goredis.Client
	retention time.Duration
	now       func() time.Time
}

// NewJobStore creates a Redis-backed job store. Records expire retention
// after creation.
func NewJobStore(client *goredis.Client, retention time.Duration) repository.JobStore {
	return &redisJobStore{client: client, retention: retention, now: time.Now}
}

func jobKey(id uuid.UUID) string {
	return jobKeyPrefix + id.String()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis: %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func (s *redisJobStore) Create(ctx context.Context, code, language, filename string) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("redis: generate job id: %w", err)
	}
	key := jobKey(id)

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			fieldJobID:     id.String(),
			fieldCode:      code,
			fieldLanguage:  language,
			fieldFilename:  filename,
			fieldStatus:    string(domain.StatusQueued),
			fieldCreatedAt: s.now().UTC().Format(time.RFC3339Nano),
		})
		pipe.Expire(ctx, key, s.retention)
		return nil
	})
	if err != nil {
		return uuid.Nil, unavailable("create job", err)
	}
	return id, nil
}

func (s *redisJobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, unavailable("get job", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrJobNotFound
	}
	return decodeJob(id, fields)
}

func decodeJob(id uuid.UUID, fields map[string]string) (*domain.Job, error) {
	job := &domain.Job{
		ID:       id,
		Code:     fields[fieldCode],
		Language: fields[fieldLanguage],
		Filename: fields[fieldFilename],
		Status:   domain.JobStatus(fields[fieldStatus]),
		Error:    fields[fieldError],
	}

	if v := fields[fieldCreatedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("redis: decode created_at: %w", err)
		}
		job.CreatedAt = t
	}
	if v := fields[fieldCompletedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("redis: decode completed_at: %w", err)
		}
		job.CompletedAt = &t
	}
	if v := fields[fieldResult]; v != "" {
		var result domain.ExecutionResult
		if err := json.Unmarshal([]byte(v), &result); err != nil {
			return nil, fmt.Errorf("redis: decode result: %w", err)
		}
		job.Result = &result
	}
	return job, nil
}

func (s *redisJobStore) GetStatus(ctx context.Context, id uuid.UUID) (domain.JobStatus, error) {
	status, err := s.client.HGet(ctx, jobKey(id), fieldStatus).Result()
	if errors.Is(err, goredis.Nil) {
		return "", domain.ErrJobNotFound
	}
	if err != nil {
		return "", unavailable("get status", err)
	}
	return domain.JobStatus(status), nil
}

func (s *redisJobStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

func (s *redisJobStore) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	code, err := markProcessingScript.Run(ctx, s.client, []string{jobKey(id)}).Int()
	if err != nil {
		return unavailable("mark processing", err)
	}
	return transitionError(code)
}

func (s *redisJobStore) MarkCompleted(ctx context.Context, id uuid.UUID, result *domain.ExecutionResult) error {
	return s.markTerminal(ctx, id, domain.StatusCompleted, "", result)
}

func (s *redisJobStore) MarkFailed(ctx context.Context, id uuid.UUID, message string, result *domain.ExecutionResult) error {
	return s.markTerminal(ctx, id, domain.StatusFailed, message, result)
}

func (s *redisJobStore) markTerminal(ctx context.Context, id uuid.UUID, status domain.JobStatus, message string, result *domain.ExecutionResult) error {
	encoded := ""
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("redis: encode result: %w", err)
		}
		encoded = string(b)
	}

	code, err := markTerminalScript.Run(ctx, s.client, []string{jobKey(id)},
		string(status),
		s.now().UTC().Format(time.RFC3339Nano),
		encoded,
		message,
	).Int()
	if err != nil {
		return unavailable("mark "+string(status), err)
	}
	return transitionError(code)
}

func transitionError(code int) error {
	switch code {
	case 1:
		return nil
	case 0:
		return domain.ErrJobNotFound
	default:
		return domain.ErrInvalidTransition
	}
}
