package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hellonagi/fz99-lounge-sub001/metrics"
	"github.com/hellonagi/fz99-lounge-sub001/models"
	"github.com/hellonagi/fz99-lounge-sub001/repositories"
	"github.com/hellonagi/fz99-lounge-sub001/schedule"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// materializeHorizonDays — горизонт генерации матчей вперёд.
const materializeHorizonDays = 7

// replenishConcurrency bounds parallel schedule processing in the daily run.
const replenishConcurrency = 4

type RuleInput struct {
	DaysOfWeek []int  `json:"days_of_week"`
	TimeOfDay  string `json:"time_of_day"`
}

type CreateRecurringMatchInput struct {
	Category   models.Category `json:"category"`
	InGameMode string          `json:"in_game_mode"`
	League     *string         `json:"league"`
	MinPlayers int             `json:"min_players"`
	MaxPlayers int             `json:"max_players"`
	Name       *string         `json:"name"`
	Notes      *string         `json:"notes"`
	Rules      []RuleInput     `json:"rules"`
}

// UpdateRecurringMatchInput — частичное обновление. nil-поля не меняются;
// непустой Rules заменяет весь набор правил целиком.
type UpdateRecurringMatchInput struct {
	InGameMode *string     `json:"in_game_mode"`
	League     *string     `json:"league"`
	MinPlayers *int        `json:"min_players"`
	MaxPlayers *int        `json:"max_players"`
	Name       *string     `json:"name"`
	Notes      *string     `json:"notes"`
	Rules      []RuleInput `json:"rules"`
}

type RecurringMatchService interface {
	Create(ctx context.Context, createdBy int, input CreateRecurringMatchInput) (*models.RecurringMatch, error)
	List(ctx context.Context) ([]*models.RecurringMatch, error)
	GetByID(ctx context.Context, id int) (*models.RecurringMatch, error)
	Update(ctx context.Context, id int, input UpdateRecurringMatchInput) (*models.RecurringMatch, error)
	SetEnabled(ctx context.Context, id int, enabled bool) (*models.RecurringMatch, error)
	Delete(ctx context.Context, id int) error
	MaterializeAll(ctx context.Context) error
}

type recurringMatchService struct {
	db            repositories.TxStarter
	recurringRepo repositories.RecurringMatchRepository
	matchRepo     repositories.MatchRepository
	seasonService SeasonService
	matchService  MatchService
	clock         schedule.Clock
	logger        *slog.Logger
}

func NewRecurringMatchService(
	db repositories.TxStarter,
	recurringRepo repositories.RecurringMatchRepository,
	matchRepo repositories.MatchRepository,
	seasonService SeasonService,
	matchService MatchService,
	clock schedule.Clock,
	logger *slog.Logger,
) RecurringMatchService {
	return &recurringMatchService{
		db:            db,
		recurringRepo: recurringRepo,
		matchRepo:     matchRepo,
		seasonService: seasonService,
		matchService:  matchService,
		clock:         clock,
		logger:        logger,
	}
}

func (s *recurringMatchService) Create(ctx context.Context, createdBy int, input CreateRecurringMatchInput) (*models.RecurringMatch, error) {
	if !input.Category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrCategoryInvalid, input.Category)
	}
	if input.InGameMode == "" {
		return nil, ErrInGameModeRequired
	}
	if input.MinPlayers <= 0 || input.MaxPlayers < input.MinPlayers {
		return nil, ErrPlayerBoundsInvalid
	}
	if err := validateRules(input.Rules, input.Category.SpanMinutes()); err != nil {
		return nil, err
	}
	if err := s.validateAgainstOtherSchedules(ctx, input.Category, 0, input.Rules); err != nil {
		return nil, err
	}

	rm := &models.RecurringMatch{
		Category:   input.Category,
		InGameMode: input.InGameMode,
		League:     input.League,
		MinPlayers: input.MinPlayers,
		MaxPlayers: input.MaxPlayers,
		Name:       input.Name,
		Notes:      input.Notes,
		IsEnabled:  true,
		CreatedBy:  createdBy,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin recurring match creation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.recurringRepo.Create(ctx, tx, rm); err != nil {
		if errors.Is(err, repositories.ErrRecurringMatchCategoryTaken) {
			return nil, fmt.Errorf("%w: %s", ErrRecurringMatchCategoryConflict, input.Category)
		}
		return nil, fmt.Errorf("failed to create recurring match: %w", err)
	}
	rm.Rules = make([]models.RecurringMatchRule, 0, len(input.Rules))
	for _, in := range input.Rules {
		rule := models.RecurringMatchRule{
			RecurringMatchID: rm.ID,
			DaysOfWeek:       in.DaysOfWeek,
			TimeOfDay:        in.TimeOfDay,
		}
		if err := s.recurringRepo.CreateRule(ctx, tx, &rule); err != nil {
			return nil, err
		}
		rm.Rules = append(rm.Rules, rule)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit recurring match creation: %w", err)
	}

	s.materializeLogged(ctx, rm)
	return rm, nil
}

func (s *recurringMatchService) List(ctx context.Context) ([]*models.RecurringMatch, error) {
	return s.recurringRepo.List(ctx)
}

func (s *recurringMatchService) GetByID(ctx context.Context, id int) (*models.RecurringMatch, error) {
	rm, err := s.recurringRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrRecurringMatchNotFound) {
			return nil, ErrRecurringMatchNotFound
		}
		return nil, err
	}
	return rm, nil
}

func (s *recurringMatchService) Update(ctx context.Context, id int, input UpdateRecurringMatchInput) (*models.RecurringMatch, error) {
	rm, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.InGameMode != nil {
		rm.InGameMode = *input.InGameMode
	}
	if input.League != nil {
		rm.League = input.League
	}
	if input.MinPlayers != nil {
		rm.MinPlayers = *input.MinPlayers
	}
	if input.MaxPlayers != nil {
		rm.MaxPlayers = *input.MaxPlayers
	}
	if input.Name != nil {
		rm.Name = input.Name
	}
	if input.Notes != nil {
		rm.Notes = input.Notes
	}
	if rm.InGameMode == "" {
		return nil, ErrInGameModeRequired
	}
	if rm.MinPlayers <= 0 || rm.MaxPlayers < rm.MinPlayers {
		return nil, ErrPlayerBoundsInvalid
	}

	replaceRules := input.Rules != nil
	if replaceRules {
		if err := validateRules(input.Rules, rm.Category.SpanMinutes()); err != nil {
			return nil, err
		}
		if err := s.validateAgainstOtherSchedules(ctx, rm.Category, rm.ID, input.Rules); err != nil {
			return nil, err
		}
	}

	// Замена правил (delete + recreate) и скалярные изменения — одна транзакция.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin recurring match update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.recurringRepo.Update(ctx, tx, rm); err != nil {
		return nil, fmt.Errorf("failed to update recurring match %d: %w", id, err)
	}
	if replaceRules {
		if err := s.recurringRepo.DeleteRules(ctx, tx, id); err != nil {
			return nil, err
		}
		rm.Rules = make([]models.RecurringMatchRule, 0, len(input.Rules))
		for _, in := range input.Rules {
			rule := models.RecurringMatchRule{
				RecurringMatchID: id,
				DaysOfWeek:       in.DaysOfWeek,
				TimeOfDay:        in.TimeOfDay,
			}
			if err := s.recurringRepo.CreateRule(ctx, tx, &rule); err != nil {
				return nil, err
			}
			rm.Rules = append(rm.Rules, rule)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit recurring match update: %w", err)
	}

	if replaceRules {
		if err := s.purgeWaitingMatches(ctx, id); err != nil {
			return nil, err
		}
	}
	if rm.IsEnabled {
		// Также добирает матчи после пропущенных запусков или re-enable.
		s.materializeLogged(ctx, rm)
	}
	return rm, nil
}

func (s *recurringMatchService) SetEnabled(ctx context.Context, id int, enabled bool) (*models.RecurringMatch, error) {
	rm, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.recurringRepo.SetEnabled(ctx, id, enabled); err != nil {
		if errors.Is(err, repositories.ErrRecurringMatchNotFound) {
			return nil, ErrRecurringMatchNotFound
		}
		return nil, fmt.Errorf("failed to set enabled for recurring match %d: %w", id, err)
	}
	rm.IsEnabled = enabled

	if enabled {
		s.materializeLogged(ctx, rm)
	} else {
		// Незапущенные матчи удаляются, начатые и завершённые не трогаем.
		if err := s.purgeWaitingMatches(ctx, id); err != nil {
			return nil, err
		}
	}
	return rm, nil
}

func (s *recurringMatchService) Delete(ctx context.Context, id int) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.purgeWaitingMatches(ctx, id); err != nil {
		return err
	}
	if err := s.recurringRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrRecurringMatchNotFound) {
			return ErrRecurringMatchNotFound
		}
		return fmt.Errorf("failed to delete recurring match %d: %w", id, err)
	}
	return nil
}

// MaterializeAll is the daily replenishment entry point: it tops up the
// generation horizon for every enabled schedule. A failure for one schedule is
// logged and never stops the others.
func (s *recurringMatchService) MaterializeAll(ctx context.Context) error {
	timer := prometheus.NewTimer(metrics.ReplenishDuration)
	defer timer.ObserveDuration()

	schedules, err := s.recurringRepo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list enabled recurring matches: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(replenishConcurrency)
	for _, rm := range schedules {
		rm := rm
		g.Go(func() error {
			if err := s.materialize(ctx, rm, materializeHorizonDays); err != nil {
				s.logger.ErrorContext(ctx, "replenishment failed for recurring match",
					slog.Int("recurring_match_id", rm.ID),
					slog.String("category", string(rm.Category)),
					slog.Any("error", err))
			}
			return nil
		})
	}
	return g.Wait()
}

// materializeLogged запускает генерацию синхронно на write-путях. Ошибки
// логируются и не проваливают уже зафиксированную запись.
func (s *recurringMatchService) materializeLogged(ctx context.Context, rm *models.RecurringMatch) {
	if err := s.materialize(ctx, rm, materializeHorizonDays); err != nil {
		s.logger.ErrorContext(ctx, "materialization after write failed",
			slog.Int("recurring_match_id", rm.ID),
			slog.Any("error", err))
	}
}

type occurrenceResult struct {
	occurrence time.Time
	match      *models.Match
	err        error
}

// materialize ensures a persisted match exists for every valid occurrence of
// every rule of the schedule within the horizon.
func (s *recurringMatchService) materialize(ctx context.Context, rm *models.RecurringMatch, horizonDays int) error {
	season, err := s.seasonService.GetActiveSeason(ctx, rm.Category)
	if err != nil {
		if errors.Is(err, ErrActiveSeasonNotFound) {
			s.logger.WarnContext(ctx, "no active season, skipping materialization",
				slog.Int("recurring_match_id", rm.ID),
				slog.String("category", string(rm.Category)))
			return nil
		}
		return err
	}

	now := s.clock.Now()
	for i := range rm.Rules {
		rule := &rm.Rules[i]

		occurrences, err := schedule.Occurrences(rule.DaysOfWeek, rule.TimeOfDay, rule.LastScheduledAt, now, horizonDays)
		if err != nil {
			s.logger.ErrorContext(ctx, "occurrence computation failed",
				slog.Int("recurring_match_id", rm.ID),
				slog.Int("rule_id", rule.ID),
				slog.Any("error", err))
			continue
		}
		if len(occurrences) == 0 {
			// Нечего генерировать — водяной знак не трогаем.
			continue
		}

		results := s.materializeOccurrences(ctx, rm, season, occurrences)

		var latest time.Time
		succeeded := 0
		for _, res := range results {
			if res.err != nil {
				metrics.OccurrencesFailed.Inc()
				s.logger.ErrorContext(ctx, "failed to materialize occurrence",
					slog.Int("recurring_match_id", rm.ID),
					slog.Int("rule_id", rule.ID),
					slog.Time("occurrence", res.occurrence),
					slog.Any("error", res.err))
				continue
			}
			succeeded++
			if res.occurrence.After(latest) {
				latest = res.occurrence
			}
		}
		if succeeded == 0 {
			continue
		}
		// Водяной знак двигается только вперёд и только при наличии успехов.
		if rule.LastScheduledAt != nil && !latest.After(*rule.LastScheduledAt) {
			continue
		}
		if err := s.recurringRepo.UpdateRuleLastScheduledAt(ctx, rule.ID, latest); err != nil {
			s.logger.ErrorContext(ctx, "failed to advance rule watermark",
				slog.Int("recurring_match_id", rm.ID),
				slog.Int("rule_id", rule.ID),
				slog.Any("error", err))
			continue
		}
		watermark := latest
		rule.LastScheduledAt = &watermark
	}
	return nil
}

// materializeOccurrences attempts creation for each occurrence independently
// and returns an explicit (occurrence, outcome) list; one failure never aborts
// the siblings.
func (s *recurringMatchService) materializeOccurrences(ctx context.Context, rm *models.RecurringMatch, season *models.Season, occurrences []time.Time) []occurrenceResult {
	results := make([]occurrenceResult, 0, len(occurrences))
	for _, occurrence := range occurrences {
		match, err := s.matchService.CreateMatch(ctx, rm.CreatedBy, CreateMatchInput{
			SeasonID:         season.ID,
			InGameMode:       rm.InGameMode,
			League:           rm.League,
			ScheduledStart:   occurrence,
			MinPlayers:       rm.MinPlayers,
			MaxPlayers:       rm.MaxPlayers,
			Notes:            rm.Notes,
			RecurringMatchID: &rm.ID,
		}, CreateMatchOptions{Silent: true})
		results = append(results, occurrenceResult{occurrence: occurrence, match: match, err: err})
		if err == nil {
			if match != nil {
				metrics.MatchesMaterialized.Inc()
			} else {
				// Silent-подавленный дубликат: слот уже существует.
				metrics.OccurrencesSkipped.Inc()
			}
		}
	}
	return results
}

// purgeWaitingMatches удаляет незапущенные сгенерированные матчи расписания и
// в той же транзакции восстанавливает сквозную нумерацию затронутых сезонов.
// Водяные знаки сбрасываются всегда, даже если удалять было нечего, чтобы
// последующая регенерация начиналась с чистого состояния.
func (s *recurringMatchService) purgeWaitingMatches(ctx context.Context, recurringMatchID int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin waiting purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Выборка под блокировкой строк в той же транзакции: матч, стартовавший
	// между выборкой и удалением, чистка не затронет.
	matches, err := s.matchRepo.ListWaitingByRecurringMatch(ctx, tx, recurringMatchID)
	if err != nil {
		return fmt.Errorf("failed to list waiting matches for recurring match %d: %w", recurringMatchID, err)
	}

	if len(matches) > 0 {
		matchIDs := make([]int, 0, len(matches))
		seasonIDs := make(map[int]struct{})
		for _, match := range matches {
			matchIDs = append(matchIDs, match.ID)
			seasonIDs[match.SeasonID] = struct{}{}
		}

		if err := s.matchRepo.DeleteGames(ctx, tx, matchIDs); err != nil {
			return err
		}
		if err := s.matchRepo.DeleteParticipants(ctx, tx, matchIDs); err != nil {
			return err
		}
		if err := s.matchRepo.DeleteWaitingByIDs(ctx, tx, matchIDs); err != nil {
			return err
		}
		for seasonID := range seasonIDs {
			if err := s.matchRepo.ReassignMatchNumbers(ctx, tx, seasonID); err != nil {
				return err
			}
		}
	}

	if err := s.recurringRepo.ResetRulesLastScheduledAt(ctx, tx, recurringMatchID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit waiting purge: %w", err)
	}

	if len(matches) > 0 {
		s.logger.InfoContext(ctx, "purged waiting matches",
			slog.Int("recurring_match_id", recurringMatchID),
			slog.Int("count", len(matches)))
	}
	return nil
}

// validateRules проверяет каждое правило и попарные пересечения внутри
// представленного набора.
func validateRules(rules []RuleInput, spanMinutes int) error {
	if len(rules) == 0 {
		return ErrRulesRequired
	}
	for _, rule := range rules {
		if len(rule.DaysOfWeek) == 0 {
			return ErrRuleDaysOfWeekRequired
		}
		for _, day := range rule.DaysOfWeek {
			if day < 0 || day > 6 {
				return fmt.Errorf("%w: got %d", ErrRuleDayOfWeekInvalid, day)
			}
		}
		if _, _, err := schedule.ParseTimeOfDay(rule.TimeOfDay); err != nil {
			return fmt.Errorf("%w: %q", ErrRuleTimeOfDayInvalid, rule.TimeOfDay)
		}
	}

	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			conflict, err := schedule.Overlaps(
				rules[i].DaysOfWeek, rules[i].TimeOfDay, spanMinutes,
				rules[j].DaysOfWeek, rules[j].TimeOfDay, spanMinutes,
			)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrValidationFailed, err)
			}
			if conflict {
				return fmt.Errorf("%w: %s conflicts with %s", ErrRuleOverlap, rules[i].TimeOfDay, rules[j].TimeOfDay)
			}
		}
	}
	return nil
}

// validateAgainstOtherSchedules прогоняет представленные правила против правил
// всех других включённых расписаний, чья категория участвует в таблице спанов.
// excludeID исключает обновляемое расписание из проверки.
func (s *recurringMatchService) validateAgainstOtherSchedules(ctx context.Context, category models.Category, excludeID int, rules []RuleInput) error {
	spanMinutes := category.SpanMinutes()
	if spanMinutes == 0 {
		return nil
	}

	enabled, err := s.recurringRepo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list enabled recurring matches for overlap check: %w", err)
	}

	for _, other := range enabled {
		if other.ID == excludeID {
			continue
		}
		otherSpan := other.Category.SpanMinutes()
		if otherSpan == 0 {
			continue
		}
		for _, otherRule := range other.Rules {
			for _, rule := range rules {
				conflict, err := schedule.Overlaps(
					rule.DaysOfWeek, rule.TimeOfDay, spanMinutes,
					otherRule.DaysOfWeek, otherRule.TimeOfDay, otherSpan,
				)
				if err != nil {
					return fmt.Errorf("%w: %v", ErrValidationFailed, err)
				}
				if conflict {
					return fmt.Errorf("%w: %s conflicts with %s of recurring match %d",
						ErrRuleOverlap, rule.TimeOfDay, otherRule.TimeOfDay, other.ID)
				}
			}
		}
	}
	return nil
}
