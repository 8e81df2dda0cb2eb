package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hellonagi/fz99-lounge-sub001/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound        = errors.New("match not found")
	ErrMatchDuplicateSlot   = errors.New("a match for this recurring slot already exists")
	ErrMatchSeasonInvalid   = errors.New("match season conflict or invalid")
	ErrMatchCreatorInvalid  = errors.New("match creator conflict or invalid")
	ErrMatchRecurringOrigin = errors.New("match recurring match reference conflict or invalid")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	NextMatchNumber(ctx context.Context, exec SQLExecutor, seasonID int) (int, error)
	ListWaitingByRecurringMatch(ctx context.Context, exec SQLExecutor, recurringMatchID int) ([]*models.Match, error)
	DeleteGames(ctx context.Context, exec SQLExecutor, matchIDs []int) error
	DeleteParticipants(ctx context.Context, exec SQLExecutor, matchIDs []int) error
	DeleteWaitingByIDs(ctx context.Context, exec SQLExecutor, matchIDs []int) error
	ReassignMatchNumbers(ctx context.Context, exec SQLExecutor, seasonID int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches
			(season_id, match_number, recurring_match_id, in_game_mode, league,
			 status, scheduled_start, min_players, max_players, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		match.SeasonID,
		match.MatchNumber,
		match.RecurringMatchID,
		match.InGameMode,
		match.League,
		match.Status,
		match.ScheduledStart,
		match.MinPlayers,
		match.MaxPlayers,
		match.Notes,
		match.CreatedBy,
	).Scan(&match.ID, &match.CreatedAt)

	return r.handleMatchError(err)
}

// NextMatchNumber returns the next sequential number within a season. Intended
// to run inside the same transaction as the insert that will use it.
func (r *postgresMatchRepository) NextMatchNumber(ctx context.Context, exec SQLExecutor, seasonID int) (int, error) {
	query := `SELECT COALESCE(MAX(match_number), 0) + 1 FROM matches WHERE season_id = $1`

	var next int
	if err := exec.QueryRowContext(ctx, query, seasonID).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to compute next match number for season %d: %w", seasonID, err)
	}
	return next, nil
}

// ListWaitingByRecurringMatch отбирает незапущенные матчи расписания под
// блокировкой строк, поэтому должен выполняться внутри транзакции чистки:
// матч, стартующий параллельно, не попадёт в выборку.
func (r *postgresMatchRepository) ListWaitingByRecurringMatch(ctx context.Context, exec SQLExecutor, recurringMatchID int) ([]*models.Match, error) {
	query := `
		SELECT id, season_id, match_number, recurring_match_id, in_game_mode, league,
		       status, scheduled_start, min_players, max_players, notes, created_by, created_at
		FROM matches
		WHERE recurring_match_id = $1 AND status = $2
		ORDER BY scheduled_start ASC, id ASC
		FOR UPDATE`

	rows, err := exec.QueryContext(ctx, query, recurringMatchID, models.MatchStatusWaiting)
	if err != nil {
		return nil, fmt.Errorf("failed to query waiting matches for recurring match %d: %w", recurringMatchID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		var match models.Match
		if scanErr := rows.Scan(
			&match.ID,
			&match.SeasonID,
			&match.MatchNumber,
			&match.RecurringMatchID,
			&match.InGameMode,
			&match.League,
			&match.Status,
			&match.ScheduledStart,
			&match.MinPlayers,
			&match.MaxPlayers,
			&match.Notes,
			&match.CreatedBy,
			&match.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan waiting match row: %w", scanErr)
		}
		matches = append(matches, &match)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during waiting match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) DeleteGames(ctx context.Context, exec SQLExecutor, matchIDs []int) error {
	query := `DELETE FROM match_games WHERE match_id = ANY($1)`
	if _, err := exec.ExecContext(ctx, query, pq.Array(matchIDs)); err != nil {
		return fmt.Errorf("failed to delete games for matches: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) DeleteParticipants(ctx context.Context, exec SQLExecutor, matchIDs []int) error {
	query := `DELETE FROM match_participants WHERE match_id = ANY($1)`
	if _, err := exec.ExecContext(ctx, query, pq.Array(matchIDs)); err != nil {
		return fmt.Errorf("failed to delete participants for matches: %w", err)
	}
	return nil
}

// DeleteWaitingByIDs удаляет только те из перечисленных матчей, которые всё
// ещё в статусе WAITING на момент удаления.
func (r *postgresMatchRepository) DeleteWaitingByIDs(ctx context.Context, exec SQLExecutor, matchIDs []int) error {
	query := `DELETE FROM matches WHERE id = ANY($1) AND status = $2`
	if _, err := exec.ExecContext(ctx, query, pq.Array(matchIDs), models.MatchStatusWaiting); err != nil {
		return fmt.Errorf("failed to delete waiting matches: %w", err)
	}
	return nil
}

// ReassignMatchNumbers re-packs match_number for every match of a season into
// a contiguous 1..n sequence, preserving the current relative order. Must run
// inside the same transaction as the deletions that opened the gaps.
func (r *postgresMatchRepository) ReassignMatchNumbers(ctx context.Context, exec SQLExecutor, seasonID int) error {
	query := `
		WITH renumbered AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY match_number ASC, id ASC) AS rn
			FROM matches
			WHERE season_id = $1
		)
		UPDATE matches
		SET match_number = renumbered.rn
		FROM renumbered
		WHERE matches.id = renumbered.id`

	if _, err := exec.ExecContext(ctx, query, seasonID); err != nil {
		return fmt.Errorf("failed to reassign match numbers for season %d: %w", seasonID, err)
	}
	return nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		// "23503": foreign_key_violation
		// "23505": unique_violation (дубликат слота регулярного матча)
		switch pqErr.Constraint {
		case "matches_recurring_match_id_scheduled_start_key":
			return ErrMatchDuplicateSlot
		case "matches_season_id_fkey":
			return ErrMatchSeasonInvalid
		case "matches_created_by_fkey":
			return ErrMatchCreatorInvalid
		case "matches_recurring_match_id_fkey":
			return ErrMatchRecurringOrigin
		}
	}
	return err
}
