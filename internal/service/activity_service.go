package service

import (
	"context"
	"fmt"

	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/repository"
)

// ActivityService reads the console activity log written by the audit logger.
type ActivityService struct {
	entries domain.ActivityRepository
}

// NewActivityService creates a new ActivityService.
func NewActivityService(entries domain.ActivityRepository) *ActivityService {
	return &ActivityService{entries: entries}
}

// List returns log entries, newest first.
func (s *ActivityService) List(ctx context.Context, limit, offset int) ([]*domain.ActivityEntry, error) {
	limit, offset = repository.NormalizePagination(limit, offset)
	entries, err := s.entries.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return entries, nil
}
