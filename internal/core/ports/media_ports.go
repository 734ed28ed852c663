package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

// MediaStore fails with domain.ErrNotFound when the object does not exist.
type MediaStore interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type MediaService interface {
	NomineeMediaURL(ctx context.Context, contestID, nomineeID uuid.UUID) (*domain.MediaURL, error)
}

// IdempotencyStore records the first completed response per scope.
// Reserve returns the recorded response when one exists; reserved is true
// when the caller now owns the scope and must Complete or Release it.
type IdempotencyStore interface {
	Reserve(ctx context.Context, scope string, ttl time.Duration) (recorded *domain.RecordedResponse, reserved bool, err error)
	Complete(ctx context.Context, scope string, resp *domain.RecordedResponse, ttl time.Duration) error
	Release(ctx context.Context, scope string) error
}
