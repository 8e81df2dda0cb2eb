package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hellonagi/fz99-lounge-sub001/models"
	"github.com/lib/pq"
)

var (
	ErrRecurringMatchNotFound      = errors.New("recurring match not found")
	ErrRecurringMatchCategoryTaken = errors.New("recurring match for this category already exists")
	ErrRecurringMatchRuleNotFound  = errors.New("recurring match rule not found")
	ErrRecurringMatchCreatorFK     = errors.New("recurring match creator conflict or invalid")
)

type RecurringMatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, rm *models.RecurringMatch) error
	CreateRule(ctx context.Context, exec SQLExecutor, rule *models.RecurringMatchRule) error
	GetByID(ctx context.Context, id int) (*models.RecurringMatch, error)
	List(ctx context.Context) ([]*models.RecurringMatch, error)
	ListEnabled(ctx context.Context) ([]*models.RecurringMatch, error)
	Update(ctx context.Context, exec SQLExecutor, rm *models.RecurringMatch) error
	SetEnabled(ctx context.Context, id int, enabled bool) error
	Delete(ctx context.Context, id int) error
	DeleteRules(ctx context.Context, exec SQLExecutor, recurringMatchID int) error
	UpdateRuleLastScheduledAt(ctx context.Context, ruleID int, lastScheduledAt time.Time) error
	ResetRulesLastScheduledAt(ctx context.Context, exec SQLExecutor, recurringMatchID int) error
}

type postgresRecurringMatchRepository struct {
	db *sql.DB
}

func NewPostgresRecurringMatchRepository(db *sql.DB) RecurringMatchRepository {
	return &postgresRecurringMatchRepository{db: db}
}

func (r *postgresRecurringMatchRepository) Create(ctx context.Context, exec SQLExecutor, rm *models.RecurringMatch) error {
	query := `
		INSERT INTO recurring_matches
			(category, in_game_mode, league, min_players, max_players, name, notes, is_enabled, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := exec.QueryRowContext(ctx, query,
		rm.Category,
		rm.InGameMode,
		rm.League,
		rm.MinPlayers,
		rm.MaxPlayers,
		rm.Name,
		rm.Notes,
		rm.IsEnabled,
		rm.CreatedBy,
	).Scan(&rm.ID, &rm.CreatedAt, &rm.UpdatedAt)

	return r.handleRecurringMatchError(err)
}

func (r *postgresRecurringMatchRepository) CreateRule(ctx context.Context, exec SQLExecutor, rule *models.RecurringMatchRule) error {
	query := `
		INSERT INTO recurring_match_rules
			(recurring_match_id, days_of_week, time_of_day, last_scheduled_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	days := make(pq.Int64Array, len(rule.DaysOfWeek))
	for i, d := range rule.DaysOfWeek {
		days[i] = int64(d)
	}

	err := exec.QueryRowContext(ctx, query,
		rule.RecurringMatchID,
		days,
		rule.TimeOfDay,
		rule.LastScheduledAt,
	).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("failed to insert rule for recurring match %d: %w", rule.RecurringMatchID, err)
	}
	return nil
}

func (r *postgresRecurringMatchRepository) GetByID(ctx context.Context, id int) (*models.RecurringMatch, error) {
	query := selectRecurringMatch + ` WHERE id = $1`

	rm := &models.RecurringMatch{}
	err := scanRecurringMatch(r.db.QueryRowContext(ctx, query, id), rm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecurringMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan recurring match by id %d: %w", id, err)
	}

	if err := r.loadRules(ctx, []*models.RecurringMatch{rm}); err != nil {
		return nil, err
	}
	return rm, nil
}

func (r *postgresRecurringMatchRepository) List(ctx context.Context) ([]*models.RecurringMatch, error) {
	return r.list(ctx, selectRecurringMatch+` ORDER BY id ASC`)
}

func (r *postgresRecurringMatchRepository) ListEnabled(ctx context.Context) ([]*models.RecurringMatch, error) {
	return r.list(ctx, selectRecurringMatch+` WHERE is_enabled = TRUE ORDER BY id ASC`)
}

const selectRecurringMatch = `
	SELECT id, category, in_game_mode, league, min_players, max_players,
	       name, notes, is_enabled, created_by, created_at, updated_at
	FROM recurring_matches`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecurringMatch(row rowScanner, rm *models.RecurringMatch) error {
	return row.Scan(
		&rm.ID,
		&rm.Category,
		&rm.InGameMode,
		&rm.League,
		&rm.MinPlayers,
		&rm.MaxPlayers,
		&rm.Name,
		&rm.Notes,
		&rm.IsEnabled,
		&rm.CreatedBy,
		&rm.CreatedAt,
		&rm.UpdatedAt,
	)
}

func (r *postgresRecurringMatchRepository) list(ctx context.Context, query string) ([]*models.RecurringMatch, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring matches: %w", err)
	}
	defer rows.Close()

	result := make([]*models.RecurringMatch, 0)
	for rows.Next() {
		var rm models.RecurringMatch
		if scanErr := scanRecurringMatch(rows, &rm); scanErr != nil {
			return nil, fmt.Errorf("failed to scan recurring match row: %w", scanErr)
		}
		result = append(result, &rm)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during recurring match rows iteration: %w", err)
	}

	if err := r.loadRules(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *postgresRecurringMatchRepository) loadRules(ctx context.Context, schedules []*models.RecurringMatch) error {
	if len(schedules) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(schedules))
	byID := make(map[int]*models.RecurringMatch, len(schedules))
	for _, rm := range schedules {
		ids = append(ids, int64(rm.ID))
		byID[rm.ID] = rm
		rm.Rules = make([]models.RecurringMatchRule, 0)
	}

	query := `
		SELECT id, recurring_match_id, days_of_week, time_of_day, last_scheduled_at
		FROM recurring_match_rules
		WHERE recurring_match_id = ANY($1)
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, pq.Int64Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query recurring match rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rule models.RecurringMatchRule
		var days pq.Int64Array
		if scanErr := rows.Scan(
			&rule.ID,
			&rule.RecurringMatchID,
			&days,
			&rule.TimeOfDay,
			&rule.LastScheduledAt,
		); scanErr != nil {
			return fmt.Errorf("failed to scan recurring match rule row: %w", scanErr)
		}
		rule.DaysOfWeek = make([]int, len(days))
		for i, d := range days {
			rule.DaysOfWeek[i] = int(d)
		}
		if rm, ok := byID[rule.RecurringMatchID]; ok {
			rm.Rules = append(rm.Rules, rule)
		}
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error during recurring match rule rows iteration: %w", err)
	}
	return nil
}

func (r *postgresRecurringMatchRepository) Update(ctx context.Context, exec SQLExecutor, rm *models.RecurringMatch) error {
	query := `
		UPDATE recurring_matches
		SET in_game_mode = $1, league = $2, min_players = $3, max_players = $4,
		    name = $5, notes = $6, updated_at = NOW()
		WHERE id = $7`

	result, err := exec.ExecContext(ctx, query,
		rm.InGameMode,
		rm.League,
		rm.MinPlayers,
		rm.MaxPlayers,
		rm.Name,
		rm.Notes,
		rm.ID,
	)
	if err != nil {
		return r.handleRecurringMatchError(err)
	}
	return checkAffectedRows(result, ErrRecurringMatchNotFound)
}

func (r *postgresRecurringMatchRepository) SetEnabled(ctx context.Context, id int, enabled bool) error {
	query := `UPDATE recurring_matches SET is_enabled = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, enabled, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRecurringMatchNotFound)
}

func (r *postgresRecurringMatchRepository) Delete(ctx context.Context, id int) error {
	// Правила удаляются каскадом (ON DELETE CASCADE).
	query := `DELETE FROM recurring_matches WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRecurringMatchNotFound)
}

func (r *postgresRecurringMatchRepository) DeleteRules(ctx context.Context, exec SQLExecutor, recurringMatchID int) error {
	query := `DELETE FROM recurring_match_rules WHERE recurring_match_id = $1`
	if _, err := exec.ExecContext(ctx, query, recurringMatchID); err != nil {
		return fmt.Errorf("failed to delete rules for recurring match %d: %w", recurringMatchID, err)
	}
	return nil
}

func (r *postgresRecurringMatchRepository) UpdateRuleLastScheduledAt(ctx context.Context, ruleID int, lastScheduledAt time.Time) error {
	query := `UPDATE recurring_match_rules SET last_scheduled_at = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, lastScheduledAt, ruleID)
	if err != nil {
		return fmt.Errorf("failed to update watermark for rule %d: %w", ruleID, err)
	}
	return checkAffectedRows(result, ErrRecurringMatchRuleNotFound)
}

func (r *postgresRecurringMatchRepository) ResetRulesLastScheduledAt(ctx context.Context, exec SQLExecutor, recurringMatchID int) error {
	query := `UPDATE recurring_match_rules SET last_scheduled_at = NULL WHERE recurring_match_id = $1`
	if _, err := exec.ExecContext(ctx, query, recurringMatchID); err != nil {
		return fmt.Errorf("failed to reset watermarks for recurring match %d: %w", recurringMatchID, err)
	}
	return nil
}

func (r *postgresRecurringMatchRepository) handleRecurringMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		// "23505": unique_violation — одна регулярная запись на категорию
		// "23503": foreign_key_violation
		switch pqErr.Constraint {
		case "recurring_matches_category_key":
			return ErrRecurringMatchCategoryTaken
		case "recurring_matches_created_by_fkey":
			return ErrRecurringMatchCreatorFK
		}
	}
	return err
}
