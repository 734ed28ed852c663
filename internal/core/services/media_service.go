package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type mediaService struct {
	contestRepo ports.ContestRepository
	media       ports.MediaStore
	ttl         time.Duration
	now         func() time.Time
}

func NewMediaService(contestRepo ports.ContestRepository, media ports.MediaStore, ttl time.Duration) ports.MediaService {
	return &mediaService{
		contestRepo: contestRepo,
		media:       media,
		ttl:         ttl,
		now:         time.Now,
	}
}

// NomineeMediaURL returns a short-lived download URL for the nominee's media.
func (s *mediaService) NomineeMediaURL(ctx context.Context, contestID, nomineeID uuid.UUID) (*domain.MediaURL, error) {
	nominee, err := s.contestRepo.GetNominee(ctx, nomineeID)
	if err != nil {
		return nil, err
	}
	if nominee.ContestID != contestID || nominee.MediaKey == "" {
		return nil, domain.ErrNotFound
	}

	expiresAt := s.now().Add(s.ttl)
	url, err := s.media.PresignGet(ctx, nominee.MediaKey, s.ttl)
	if err != nil {
		return nil, err
	}
	return &domain.MediaURL{URL: url, ExpiresAt: expiresAt}, nil
}
