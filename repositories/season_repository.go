package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hellonagi/fz99-lounge-sub001/models"
)

var ErrSeasonNotFound = errors.New("season not found")

type SeasonRepository interface {
	GetActiveByCategory(ctx context.Context, category models.Category) (*models.Season, error)
}

type postgresSeasonRepository struct {
	db *sql.DB
}

func NewPostgresSeasonRepository(db *sql.DB) SeasonRepository {
	return &postgresSeasonRepository{db: db}
}

func (r *postgresSeasonRepository) GetActiveByCategory(ctx context.Context, category models.Category) (*models.Season, error) {
	query := `
		SELECT id, category, name, is_active, started_at
		FROM seasons
		WHERE category = $1 AND is_active = TRUE
		ORDER BY started_at DESC
		LIMIT 1`

	season := &models.Season{}
	err := r.db.QueryRowContext(ctx, query, category).Scan(
		&season.ID,
		&season.Category,
		&season.Name,
		&season.IsActive,
		&season.StartedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeasonNotFound
		}
		return nil, fmt.Errorf("failed to scan active season for category %s: %w", category, err)
	}
	return season, nil
}
