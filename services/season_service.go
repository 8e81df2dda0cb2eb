package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/hellonagi/fz99-lounge-sub001/models"
	"github.com/hellonagi/fz99-lounge-sub001/repositories"
)

// SeasonService разрешает активный сезон для категории. Планировщик трактует
// отсутствие активного сезона как "пропустить", а не как сбой.
type SeasonService interface {
	GetActiveSeason(ctx context.Context, category models.Category) (*models.Season, error)
}

type seasonService struct {
	seasonRepo repositories.SeasonRepository
}

func NewSeasonService(seasonRepo repositories.SeasonRepository) SeasonService {
	return &seasonService{seasonRepo: seasonRepo}
}

func (s *seasonService) GetActiveSeason(ctx context.Context, category models.Category) (*models.Season, error) {
	season, err := s.seasonRepo.GetActiveByCategory(ctx, category)
	if err != nil {
		if errors.Is(err, repositories.ErrSeasonNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrActiveSeasonNotFound, category)
		}
		return nil, fmt.Errorf("failed to resolve active season for category %s: %w", category, err)
	}
	return season, nil
}
