package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/Harsh-BH/codr/internal/domain"
)

func TestSave_RejectsUnfinishedJob(t *testing.T) {
	// The status check runs before any query, so no pool is needed.
	archive := NewJobArchive(nil)

	for _, status := range []domain.JobStatus{domain.StatusQueued, domain.StatusProcessing} {
		err := archive.Save(context.Background(), &domain.Job{ID: uuid.New(), Status: status})
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("%s: expected ErrInvalidTransition, got %v", status, err)
		}
	}
}
