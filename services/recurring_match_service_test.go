package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/hellonagi/fz99-lounge-sub001/models"
	"github.com/hellonagi/fz99-lounge-sub001/repositories"
)

// testNow is a Wednesday, 12:00 UTC (21:00 JST the same day).
var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

// --- transaction fake ---

type fakeTx struct{}

func (fakeTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (fakeTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (fakeTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}
func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeTxStarter struct{}

func (fakeTxStarter) BeginTx(ctx context.Context, opts *sql.TxOptions) (repositories.Tx, error) {
	return fakeTx{}, nil
}

// --- season service fake ---

type fakeSeasonService struct {
	seasons map[models.Category]*models.Season
}

func (s *fakeSeasonService) GetActiveSeason(ctx context.Context, category models.Category) (*models.Season, error) {
	season, ok := s.seasons[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActiveSeasonNotFound, category)
	}
	return season, nil
}

// --- recurring match repository fake ---

type fakeRecurringMatchRepo struct {
	schedules  map[int]*models.RecurringMatch
	nextID     int
	nextRuleID int
}

func newFakeRecurringMatchRepo() *fakeRecurringMatchRepo {
	return &fakeRecurringMatchRepo{
		schedules:  make(map[int]*models.RecurringMatch),
		nextID:     1,
		nextRuleID: 1,
	}
}

func cloneRecurringMatch(rm *models.RecurringMatch) *models.RecurringMatch {
	clone := *rm
	clone.Rules = make([]models.RecurringMatchRule, len(rm.Rules))
	for i, rule := range rm.Rules {
		clone.Rules[i] = rule
		if rule.LastScheduledAt != nil {
			watermark := *rule.LastScheduledAt
			clone.Rules[i].LastScheduledAt = &watermark
		}
	}
	return &clone
}

func (r *fakeRecurringMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, rm *models.RecurringMatch) error {
	for _, existing := range r.schedules {
		if existing.Category == rm.Category {
			return repositories.ErrRecurringMatchCategoryTaken
		}
	}
	rm.ID = r.nextID
	r.nextID++
	stored := cloneRecurringMatch(rm)
	stored.Rules = make([]models.RecurringMatchRule, 0)
	r.schedules[rm.ID] = stored
	return nil
}

func (r *fakeRecurringMatchRepo) CreateRule(ctx context.Context, exec repositories.SQLExecutor, rule *models.RecurringMatchRule) error {
	rm, ok := r.schedules[rule.RecurringMatchID]
	if !ok {
		return repositories.ErrRecurringMatchNotFound
	}
	rule.ID = r.nextRuleID
	r.nextRuleID++
	rm.Rules = append(rm.Rules, *rule)
	return nil
}

func (r *fakeRecurringMatchRepo) GetByID(ctx context.Context, id int) (*models.RecurringMatch, error) {
	rm, ok := r.schedules[id]
	if !ok {
		return nil, repositories.ErrRecurringMatchNotFound
	}
	return cloneRecurringMatch(rm), nil
}

func (r *fakeRecurringMatchRepo) List(ctx context.Context) ([]*models.RecurringMatch, error) {
	return r.listWhere(func(rm *models.RecurringMatch) bool { return true }), nil
}

func (r *fakeRecurringMatchRepo) ListEnabled(ctx context.Context) ([]*models.RecurringMatch, error) {
	return r.listWhere(func(rm *models.RecurringMatch) bool { return rm.IsEnabled }), nil
}

func (r *fakeRecurringMatchRepo) listWhere(keep func(*models.RecurringMatch) bool) []*models.RecurringMatch {
	result := make([]*models.RecurringMatch, 0)
	for _, rm := range r.schedules {
		if keep(rm) {
			result = append(result, cloneRecurringMatch(rm))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (r *fakeRecurringMatchRepo) Update(ctx context.Context, exec repositories.SQLExecutor, rm *models.RecurringMatch) error {
	stored, ok := r.schedules[rm.ID]
	if !ok {
		return repositories.ErrRecurringMatchNotFound
	}
	stored.InGameMode = rm.InGameMode
	stored.League = rm.League
	stored.MinPlayers = rm.MinPlayers
	stored.MaxPlayers = rm.MaxPlayers
	stored.Name = rm.Name
	stored.Notes = rm.Notes
	return nil
}

func (r *fakeRecurringMatchRepo) SetEnabled(ctx context.Context, id int, enabled bool) error {
	rm, ok := r.schedules[id]
	if !ok {
		return repositories.ErrRecurringMatchNotFound
	}
	rm.IsEnabled = enabled
	return nil
}

func (r *fakeRecurringMatchRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.schedules[id]; !ok {
		return repositories.ErrRecurringMatchNotFound
	}
	delete(r.schedules, id)
	return nil
}

func (r *fakeRecurringMatchRepo) DeleteRules(ctx context.Context, exec repositories.SQLExecutor, recurringMatchID int) error {
	rm, ok := r.schedules[recurringMatchID]
	if !ok {
		return repositories.ErrRecurringMatchNotFound
	}
	rm.Rules = make([]models.RecurringMatchRule, 0)
	return nil
}

func (r *fakeRecurringMatchRepo) UpdateRuleLastScheduledAt(ctx context.Context, ruleID int, lastScheduledAt time.Time) error {
	for _, rm := range r.schedules {
		for i := range rm.Rules {
			if rm.Rules[i].ID == ruleID {
				watermark := lastScheduledAt
				rm.Rules[i].LastScheduledAt = &watermark
				return nil
			}
		}
	}
	return repositories.ErrRecurringMatchRuleNotFound
}

func (r *fakeRecurringMatchRepo) ResetRulesLastScheduledAt(ctx context.Context, exec repositories.SQLExecutor, recurringMatchID int) error {
	rm, ok := r.schedules[recurringMatchID]
	if !ok {
		return nil
	}
	for i := range rm.Rules {
		rm.Rules[i].LastScheduledAt = nil
	}
	return nil
}

// rule returns the stored rule at index i of schedule id, for assertions.
func (r *fakeRecurringMatchRepo) rule(t *testing.T, id, i int) models.RecurringMatchRule {
	t.Helper()
	rm, ok := r.schedules[id]
	if !ok || i >= len(rm.Rules) {
		t.Fatalf("no rule %d for recurring match %d", i, id)
	}
	return rm.Rules[i]
}

// --- match repository fake ---

type fakeMatchRepo struct {
	matches           []*models.Match
	nextID            int
	failTimes         []time.Time
	renumberedSeasons []int
	gamesDeleted      int
	participantsGone  int
	afterListWaiting  func()
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{nextID: 1}
}

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	for _, failAt := range r.failTimes {
		if match.ScheduledStart.Equal(failAt) {
			return errors.New("storage rejected match")
		}
	}
	if match.RecurringMatchID != nil {
		for _, existing := range r.matches {
			if existing.RecurringMatchID != nil &&
				*existing.RecurringMatchID == *match.RecurringMatchID &&
				existing.ScheduledStart.Equal(match.ScheduledStart) {
				return repositories.ErrMatchDuplicateSlot
			}
		}
	}
	match.ID = r.nextID
	r.nextID++
	r.matches = append(r.matches, match)
	return nil
}

func (r *fakeMatchRepo) NextMatchNumber(ctx context.Context, exec repositories.SQLExecutor, seasonID int) (int, error) {
	max := 0
	for _, match := range r.matches {
		if match.SeasonID == seasonID && match.MatchNumber > max {
			max = match.MatchNumber
		}
	}
	return max + 1, nil
}

func (r *fakeMatchRepo) ListWaitingByRecurringMatch(ctx context.Context, exec repositories.SQLExecutor, recurringMatchID int) ([]*models.Match, error) {
	result := make([]*models.Match, 0)
	for _, match := range r.matches {
		if match.Status == models.MatchStatusWaiting &&
			match.RecurringMatchID != nil && *match.RecurringMatchID == recurringMatchID {
			result = append(result, match)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ScheduledStart.Equal(result[j].ScheduledStart) {
			return result[i].ScheduledStart.Before(result[j].ScheduledStart)
		}
		return result[i].ID < result[j].ID
	})
	if r.afterListWaiting != nil {
		r.afterListWaiting()
	}
	return result, nil
}

func (r *fakeMatchRepo) DeleteGames(ctx context.Context, exec repositories.SQLExecutor, matchIDs []int) error {
	r.gamesDeleted += len(matchIDs)
	return nil
}

func (r *fakeMatchRepo) DeleteParticipants(ctx context.Context, exec repositories.SQLExecutor, matchIDs []int) error {
	r.participantsGone += len(matchIDs)
	return nil
}

func (r *fakeMatchRepo) DeleteWaitingByIDs(ctx context.Context, exec repositories.SQLExecutor, matchIDs []int) error {
	doomed := make(map[int]bool, len(matchIDs))
	for _, id := range matchIDs {
		doomed[id] = true
	}
	kept := make([]*models.Match, 0, len(r.matches))
	for _, match := range r.matches {
		if !doomed[match.ID] || match.Status != models.MatchStatusWaiting {
			kept = append(kept, match)
		}
	}
	r.matches = kept
	return nil
}

func (r *fakeMatchRepo) ReassignMatchNumbers(ctx context.Context, exec repositories.SQLExecutor, seasonID int) error {
	r.renumberedSeasons = append(r.renumberedSeasons, seasonID)
	season := make([]*models.Match, 0)
	for _, match := range r.matches {
		if match.SeasonID == seasonID {
			season = append(season, match)
		}
	}
	sort.Slice(season, func(i, j int) bool {
		if season[i].MatchNumber != season[j].MatchNumber {
			return season[i].MatchNumber < season[j].MatchNumber
		}
		return season[i].ID < season[j].ID
	})
	for i, match := range season {
		match.MatchNumber = i + 1
	}
	return nil
}

func (r *fakeMatchRepo) bySchedule(recurringMatchID int) []*models.Match {
	result := make([]*models.Match, 0)
	for _, match := range r.matches {
		if match.RecurringMatchID != nil && *match.RecurringMatchID == recurringMatchID {
			result = append(result, match)
		}
	}
	return result
}

// --- fixture ---

type fixture struct {
	svc           RecurringMatchService
	recurringRepo *fakeRecurringMatchRepo
	matchRepo     *fakeMatchRepo
	clock         *testClock
}

func newFixture(seasons map[models.Category]*models.Season) *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recurringRepo := newFakeRecurringMatchRepo()
	matchRepo := newFakeMatchRepo()
	clock := &testClock{now: testNow}
	matchService := NewMatchService(fakeTxStarter{}, matchRepo, logger)
	svc := NewRecurringMatchService(
		fakeTxStarter{},
		recurringRepo,
		matchRepo,
		&fakeSeasonService{seasons: seasons},
		matchService,
		clock,
		logger,
	)
	return &fixture{svc: svc, recurringRepo: recurringRepo, matchRepo: matchRepo, clock: clock}
}

func gpSeason() map[models.Category]*models.Season {
	return map[models.Category]*models.Season{
		models.CategoryGP: {ID: 1, Category: models.CategoryGP, Name: "S1", IsActive: true},
	}
}

func allDays() []int { return []int{0, 1, 2, 3, 4, 5, 6} }

func gpInput(rules []RuleInput) CreateRecurringMatchInput {
	return CreateRecurringMatchInput{
		Category:   models.CategoryGP,
		InGameMode: "GP99",
		MinPlayers: 2,
		MaxPlayers: 99,
		Rules:      rules,
	}
}

// --- tests ---

func TestCreateMaterializesHorizon(t *testing.T) {
	f := newFixture(gpSeason())

	// 21:00 JST is 12:00 UTC; today's occurrence equals "now" and is excluded.
	rm, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: allDays(), TimeOfDay: "21:00"}}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	matches := f.matchRepo.bySchedule(rm.ID)
	if len(matches) != 7 {
		t.Fatalf("got %d materialized matches, want 7", len(matches))
	}
	for i, match := range matches {
		if match.Status != models.MatchStatusWaiting {
			t.Errorf("match %d status = %s, want WAITING", match.ID, match.Status)
		}
		if match.MatchNumber != i+1 {
			t.Errorf("match %d number = %d, want %d", match.ID, match.MatchNumber, i+1)
		}
		if !match.ScheduledStart.After(testNow) {
			t.Errorf("match %d scheduled at %v, not after now", match.ID, match.ScheduledStart)
		}
		if match.CreatedBy != 7 {
			t.Errorf("match %d created_by = %d, want 7", match.ID, match.CreatedBy)
		}
	}

	rule := f.recurringRepo.rule(t, rm.ID, 0)
	wantWatermark := time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC)
	if rule.LastScheduledAt == nil || !rule.LastScheduledAt.Equal(wantWatermark) {
		t.Errorf("watermark = %v, want %v", rule.LastScheduledAt, wantWatermark)
	}
}

func TestMaterializeAllIsIdempotent(t *testing.T) {
	f := newFixture(gpSeason())

	rm, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: allDays(), TimeOfDay: "21:00"}}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := len(f.matchRepo.bySchedule(rm.ID))

	for i := 0; i < 2; i++ {
		if err := f.svc.MaterializeAll(context.Background()); err != nil {
			t.Fatalf("MaterializeAll run %d: %v", i+1, err)
		}
	}
	if after := len(f.matchRepo.bySchedule(rm.ID)); after != before {
		t.Errorf("match count changed from %d to %d across re-runs", before, after)
	}
}

func TestMaterializeDuplicateGuardAbsorbsResetWatermark(t *testing.T) {
	f := newFixture(gpSeason())

	rm, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: allDays(), TimeOfDay: "21:00"}}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := len(f.matchRepo.bySchedule(rm.ID))

	// Lose the watermark without touching the matches; the duplicate guard
	// alone has to absorb every regenerated occurrence.
	stored := f.recurringRepo.schedules[rm.ID]
	stored.Rules[0].LastScheduledAt = nil

	if err := f.svc.MaterializeAll(context.Background()); err != nil {
		t.Fatalf("MaterializeAll: %v", err)
	}
	if after := len(f.matchRepo.bySchedule(rm.ID)); after != before {
		t.Errorf("match count changed from %d to %d after watermark loss", before, after)
	}

	// Duplicate-skipped occurrences still count as processed, so the
	// watermark is restored.
	rule := f.recurringRepo.rule(t, rm.ID, 0)
	if rule.LastScheduledAt == nil {
		t.Error("watermark was not re-advanced after duplicate-only run")
	}
}

func TestWatermarkAdvancesMonotonically(t *testing.T) {
	f := newFixture(gpSeason())

	rm, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: allDays(), TimeOfDay: "21:00"}}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first := f.recurringRepo.rule(t, rm.ID, 0).LastScheduledAt
	if first == nil {
		t.Fatal("watermark not set after create")
	}

	f.clock.now = testNow.Add(48 * time.Hour)
	if err := f.svc.MaterializeAll(context.Background()); err != nil {
		t.Fatalf("MaterializeAll: %v", err)
	}

	second := f.recurringRepo.rule(t, rm.ID, 0).LastScheduledAt
	if second == nil || second.Before(*first) {
		t.Errorf("watermark regressed: %v -> %v", first, second)
	}
	if !second.After(*first) {
		t.Errorf("watermark did not advance past %v with a later clock", first)
	}
}

func TestCreateRejectsOverlappingRulesWithinSchedule(t *testing.T) {
	f := newFixture(gpSeason())

	// GP span is 120 minutes: 10:00-12:00 overlaps 10:10-12:10 on Mondays.
	_, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{
		{DaysOfWeek: []int{1}, TimeOfDay: "10:00"},
		{DaysOfWeek: []int{1}, TimeOfDay: "10:10"},
	}))
	if !errors.Is(err, ErrRuleOverlap) {
		t.Fatalf("got %v, want ErrRuleOverlap", err)
	}

	// TOURNAMENT has no span and is exempt from the check.
	_, err = f.svc.Create(context.Background(), 7, CreateRecurringMatchInput{
		Category:   models.CategoryTournament,
		InGameMode: "KNOCKOUT",
		MinPlayers: 2,
		MaxPlayers: 99,
		Rules: []RuleInput{
			{DaysOfWeek: []int{1}, TimeOfDay: "10:00"},
			{DaysOfWeek: []int{1}, TimeOfDay: "10:10"},
		},
	})
	if err != nil {
		t.Fatalf("spanless category rejected: %v", err)
	}
}

func TestCreateRejectsCrossScheduleOverlap(t *testing.T) {
	f := newFixture(gpSeason())

	gp, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: []int{3}, TimeOfDay: "18:00"}}))
	if err != nil {
		t.Fatalf("Create GP: %v", err)
	}

	classic := CreateRecurringMatchInput{
		Category:   models.CategoryClassic,
		InGameMode: "CLASSIC99",
		MinPlayers: 2,
		MaxPlayers: 99,
		Rules:      []RuleInput{{DaysOfWeek: []int{3}, TimeOfDay: "19:00"}},
	}

	// 19:00 sits inside GP's 18:00 + 120 minute window on the same day.
	if _, err := f.svc.Create(context.Background(), 7, classic); !errors.Is(err, ErrRuleOverlap) {
		t.Fatalf("got %v, want ErrRuleOverlap", err)
	}

	// Disabled schedules do not participate in the check.
	if _, err := f.svc.SetEnabled(context.Background(), gp.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if _, err := f.svc.Create(context.Background(), 7, classic); err != nil {
		t.Fatalf("Create CLASSIC after disabling GP: %v", err)
	}
}

func TestCreateRejectsDuplicateCategory(t *testing.T) {
	f := newFixture(gpSeason())

	if _, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: []int{1}, TimeOfDay: "10:00"}})); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: []int{5}, TimeOfDay: "23:00"}}))
	if !errors.Is(err, ErrRecurringMatchCategoryConflict) {
		t.Fatalf("got %v, want ErrRecurringMatchCategoryConflict", err)
	}
}

func TestCreateRejectsBadRuleInput(t *testing.T) {
	f := newFixture(gpSeason())

	cases := []struct {
		name  string
		rules []RuleInput
		want  error
	}{
		{"No Rules", nil, ErrRulesRequired},
		{"Empty Days", []RuleInput{{DaysOfWeek: []int{}, TimeOfDay: "10:00"}}, ErrRuleDaysOfWeekRequired},
		{"Day Out Of Range", []RuleInput{{DaysOfWeek: []int{7}, TimeOfDay: "10:00"}}, ErrRuleDayOfWeekInvalid},
		{"Negative Day", []RuleInput{{DaysOfWeek: []int{-1}, TimeOfDay: "10:00"}}, ErrRuleDayOfWeekInvalid},
		{"Bad Time", []RuleInput{{DaysOfWeek: []int{1}, TimeOfDay: "9:00"}}, ErrRuleTimeOfDayInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), 7, gpInput(tc.rules))
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestMaterializePartialFailureIsolation(t *testing.T) {
	f := newFixture(gpSeason())

	// Occurrences will be Jan 11 .. Jan 17 at 12:00 UTC. Fail the second and
	// the last one.
	f.matchRepo.failTimes = []time.Time{
		time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC),
	}

	rm, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: allDays(), TimeOfDay: "21:00"}}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	matches := f.matchRepo.bySchedule(rm.ID)
	if len(matches) != 5 {
		t.Fatalf("got %d matches, want 5 (two occurrences failed)", len(matches))
	}
	for _, match := range matches {
		for _, failAt := range f.matchRepo.failTimes {
			if match.ScheduledStart.Equal(failAt) {
				t.Errorf("failed occurrence %v was persisted", failAt)
			}
		}
	}

	// The watermark reflects the latest successful occurrence, not the
	// latest attempted one.
	rule := f.recurringRepo.rule(t, rm.ID, 0)
	wantWatermark := time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC)
	if rule.LastScheduledAt == nil || !rule.LastScheduledAt.Equal(wantWatermark) {
		t.Errorf("watermark = %v, want %v", rule.LastScheduledAt, wantWatermark)
	}
}

func TestMaterializeSkipsWithoutActiveSeason(t *testing.T) {
	f := newFixture(map[models.Category]*models.Season{}) // no seasons at all

	rm, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: allDays(), TimeOfDay: "21:00"}}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := len(f.matchRepo.matches); got != 0 {
		t.Errorf("got %d matches without an active season, want 0", got)
	}
	if rule := f.recurringRepo.rule(t, rm.ID, 0); rule.LastScheduledAt != nil {
		t.Errorf("watermark set to %v without materialization", rule.LastScheduledAt)
	}
}

func TestDisablePurgesWaitingAndResetsWatermark(t *testing.T) {
	f := newFixture(gpSeason())

	rm, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: allDays(), TimeOfDay: "21:00"}}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// One generated match has already started; it must survive the purge.
	started := f.matchRepo.bySchedule(rm.ID)[2]
	started.Status = models.MatchStatusInProgress

	if _, err := f.svc.SetEnabled(context.Background(), rm.ID, false); err != nil {
		t.Fatalf("SetEnabled(false): %v", err)
	}

	remaining := f.matchRepo.bySchedule(rm.ID)
	if len(remaining) != 1 || remaining[0].ID != started.ID {
		t.Fatalf("purge kept %d matches, want only the in-progress one", len(remaining))
	}
	if rule := f.recurringRepo.rule(t, rm.ID, 0); rule.LastScheduledAt != nil {
		t.Errorf("watermark not reset on disable: %v", rule.LastScheduledAt)
	}

	// Re-enabling regenerates; the still-existing slot is absorbed by the
	// duplicate guard rather than doubled.
	if _, err := f.svc.SetEnabled(context.Background(), rm.ID, true); err != nil {
		t.Fatalf("SetEnabled(true): %v", err)
	}
	if got := len(f.matchRepo.bySchedule(rm.ID)); got != 7 {
		t.Errorf("got %d matches after re-enable, want 7", got)
	}
}

func TestPurgeSparesMatchStartingConcurrently(t *testing.T) {
	f := newFixture(gpSeason())

	rm, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: allDays(), TimeOfDay: "21:00"}}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// One of the selected matches starts between selection and deletion.
	racer := f.matchRepo.bySchedule(rm.ID)[3]
	f.matchRepo.afterListWaiting = func() {
		racer.Status = models.MatchStatusInProgress
	}

	if _, err := f.svc.SetEnabled(context.Background(), rm.ID, false); err != nil {
		t.Fatalf("SetEnabled(false): %v", err)
	}

	remaining := f.matchRepo.bySchedule(rm.ID)
	if len(remaining) != 1 || remaining[0].ID != racer.ID {
		t.Fatalf("purge kept %d matches, want only the one that started mid-purge", len(remaining))
	}
	if remaining[0].Status != models.MatchStatusInProgress {
		t.Errorf("surviving match status = %s, want IN_PROGRESS", remaining[0].Status)
	}
	if rule := f.recurringRepo.rule(t, rm.ID, 0); rule.LastScheduledAt != nil {
		t.Errorf("watermark not reset: %v", rule.LastScheduledAt)
	}
}

func TestDeletePurgesAndRenumbersSeason(t *testing.T) {
	f := newFixture(gpSeason())

	// TOURNAMENT has no active season, so Create materializes nothing and the
	// season contents stay fully under the test's control.
	rm, err := f.svc.Create(context.Background(), 7, CreateRecurringMatchInput{
		Category:   models.CategoryTournament,
		InGameMode: "KNOCKOUT",
		MinPlayers: 2,
		MaxPlayers: 99,
		Rules:      []RuleInput{{DaysOfWeek: []int{6}, TimeOfDay: "20:00"}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Season 1 holds matches numbered 1..5; numbers 2 and 4 are WAITING
	// matches generated by the schedule being deleted.
	seed := []struct {
		number    int
		status    models.MatchStatus
		recurring bool
	}{
		{1, models.MatchStatusCompleted, false},
		{2, models.MatchStatusWaiting, true},
		{3, models.MatchStatusInProgress, false},
		{4, models.MatchStatusWaiting, true},
		{5, models.MatchStatusWaiting, false},
	}
	for _, row := range seed {
		match := &models.Match{
			SeasonID:       1,
			MatchNumber:    row.number,
			InGameMode:     "GP99",
			Status:         row.status,
			ScheduledStart: testNow.Add(time.Duration(row.number) * time.Hour),
			MinPlayers:     2,
			MaxPlayers:     99,
			CreatedBy:      7,
		}
		if row.recurring {
			id := rm.ID
			match.RecurringMatchID = &id
		}
		if err := f.matchRepo.Create(context.Background(), fakeTx{}, match); err != nil {
			t.Fatalf("seed match %d: %v", row.number, err)
		}
	}

	if err := f.svc.Delete(context.Background(), rm.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.GetByID(context.Background(), rm.ID); !errors.Is(err, ErrRecurringMatchNotFound) {
		t.Errorf("schedule still readable after delete: %v", err)
	}

	if len(f.matchRepo.renumberedSeasons) != 1 || f.matchRepo.renumberedSeasons[0] != 1 {
		t.Errorf("renumbered seasons = %v, want [1]", f.matchRepo.renumberedSeasons)
	}
	if f.matchRepo.gamesDeleted != 2 || f.matchRepo.participantsGone != 2 {
		t.Errorf("dependent rows cleaned for %d/%d matches, want 2/2",
			f.matchRepo.gamesDeleted, f.matchRepo.participantsGone)
	}

	// Former numbers 1, 3, 5 must now be a contiguous 1, 2, 3 in the same
	// relative order.
	kept := f.matchRepo.matches
	sort.Slice(kept, func(i, j int) bool { return kept[i].MatchNumber < kept[j].MatchNumber })
	if len(kept) != 3 {
		t.Fatalf("got %d remaining matches, want 3", len(kept))
	}
	wantStatuses := []models.MatchStatus{
		models.MatchStatusCompleted,
		models.MatchStatusInProgress,
		models.MatchStatusWaiting,
	}
	for i, match := range kept {
		if match.MatchNumber != i+1 {
			t.Errorf("match %d renumbered to %d, want %d", match.ID, match.MatchNumber, i+1)
		}
		if match.Status != wantStatuses[i] {
			t.Errorf("match order disturbed: position %d has status %s, want %s", i, match.Status, wantStatuses[i])
		}
	}
}

func TestUpdateReplacesRulesAndRegenerates(t *testing.T) {
	f := newFixture(gpSeason())

	rm, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: allDays(), TimeOfDay: "21:00"}}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := len(f.matchRepo.bySchedule(rm.ID)); got != 7 {
		t.Fatalf("got %d matches after create, want 7", got)
	}

	// Mondays at 10:00 JST; only Jan 15 falls inside the horizon.
	updated, err := f.svc.Update(context.Background(), rm.ID, UpdateRecurringMatchInput{
		Rules: []RuleInput{{DaysOfWeek: []int{1}, TimeOfDay: "10:00"}},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.Rules) != 1 || updated.Rules[0].TimeOfDay != "10:00" {
		t.Fatalf("rules not replaced: %+v", updated.Rules)
	}

	matches := f.matchRepo.bySchedule(rm.ID)
	want := time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC) // 10:00 JST Monday
	if len(matches) != 1 {
		t.Fatalf("got %d matches after rule replacement, want 1", len(matches))
	}
	if !matches[0].ScheduledStart.Equal(want) {
		t.Fatalf("regenerated match scheduled at %v, want %v", matches[0].ScheduledStart, want)
	}
	rule := f.recurringRepo.rule(t, rm.ID, 0)
	if rule.LastScheduledAt == nil || !rule.LastScheduledAt.Equal(want) {
		t.Errorf("watermark = %v, want %v", rule.LastScheduledAt, want)
	}
	if len(f.matchRepo.renumberedSeasons) == 0 {
		t.Error("season was not renumbered after the purge")
	}
}

func TestUpdateWithoutRulesTopsUpHorizon(t *testing.T) {
	f := newFixture(gpSeason())

	rm, err := f.svc.Create(context.Background(), 7, gpInput([]RuleInput{{DaysOfWeek: allDays(), TimeOfDay: "21:00"}}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Two days pass without the daily job running.
	f.clock.now = testNow.Add(48 * time.Hour)

	name := "weekday league"
	if _, err := f.svc.Update(context.Background(), rm.ID, UpdateRecurringMatchInput{Name: &name}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// The horizon now reaches Jan 19; Jan 18 and Jan 19 get topped up.
	if got := len(f.matchRepo.bySchedule(rm.ID)); got != 9 {
		t.Errorf("got %d matches after top-up, want 9", got)
	}
	if stored := f.recurringRepo.schedules[rm.ID]; stored.Name == nil || *stored.Name != name {
		t.Errorf("scalar update lost: %+v", stored.Name)
	}
}
