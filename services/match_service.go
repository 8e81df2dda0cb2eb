package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hellonagi/fz99-lounge-sub001/models"
	"github.com/hellonagi/fz99-lounge-sub001/repositories"
)

type CreateMatchInput struct {
	SeasonID         int       `json:"season_id"`
	InGameMode       string    `json:"in_game_mode"`
	League           *string   `json:"league"`
	ScheduledStart   time.Time `json:"scheduled_start"`
	MinPlayers       int       `json:"min_players"`
	MaxPlayers       int       `json:"max_players"`
	Notes            *string   `json:"notes"`
	RecurringMatchID *int      `json:"recurring_match_id"`
}

// CreateMatchOptions управляет поведением создания. Silent подавляет
// ожидаемые конфликты дубликатов: CreateMatch вернёт (nil, nil) вместо ошибки.
type CreateMatchOptions struct {
	Silent bool
}

type MatchService interface {
	CreateMatch(ctx context.Context, createdBy int, input CreateMatchInput, opts CreateMatchOptions) (*models.Match, error)
}

type matchService struct {
	db        repositories.TxStarter
	matchRepo repositories.MatchRepository
	logger    *slog.Logger
}

func NewMatchService(
	db repositories.TxStarter,
	matchRepo repositories.MatchRepository,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		db:        db,
		matchRepo: matchRepo,
		logger:    logger,
	}
}

// CreateMatch persists a single match, assigning the next sequential match
// number within its season. Number assignment and insert share one transaction
// so concurrent creators cannot claim the same number.
func (s *matchService) CreateMatch(ctx context.Context, createdBy int, input CreateMatchInput, opts CreateMatchOptions) (*models.Match, error) {
	if input.InGameMode == "" {
		return nil, ErrInGameModeRequired
	}
	if input.MinPlayers <= 0 || input.MaxPlayers < input.MinPlayers {
		return nil, ErrPlayerBoundsInvalid
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin match creation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	matchNumber, err := s.matchRepo.NextMatchNumber(ctx, tx, input.SeasonID)
	if err != nil {
		return nil, err
	}

	match := &models.Match{
		SeasonID:         input.SeasonID,
		MatchNumber:      matchNumber,
		RecurringMatchID: input.RecurringMatchID,
		InGameMode:       input.InGameMode,
		League:           input.League,
		Status:           models.MatchStatusWaiting,
		ScheduledStart:   input.ScheduledStart,
		MinPlayers:       input.MinPlayers,
		MaxPlayers:       input.MaxPlayers,
		Notes:            input.Notes,
		CreatedBy:        createdBy,
	}

	if err := s.matchRepo.Create(ctx, tx, match); err != nil {
		if errors.Is(err, repositories.ErrMatchDuplicateSlot) {
			if opts.Silent {
				s.logger.DebugContext(ctx, "match slot already materialized, skipping",
					slog.Int("season_id", input.SeasonID),
					slog.Time("scheduled_start", input.ScheduledStart))
				return nil, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrMatchSlotTaken, input.ScheduledStart.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit match creation: %w", err)
	}
	return match, nil
}
