package models

import "time"

// RecurringMatch — определение регулярной генерации матчей для одной
// категории. Владеет набором правил (1 ко многим, каскадное удаление).
type RecurringMatch struct {
	ID         int       `json:"id" db:"id"`
	Category   Category  `json:"category" db:"category"`
	InGameMode string    `json:"in_game_mode" db:"in_game_mode"`
	League     *string   `json:"league,omitempty" db:"league"`
	MinPlayers int       `json:"min_players" db:"min_players"`
	MaxPlayers int       `json:"max_players" db:"max_players"`
	Name       *string   `json:"name,omitempty" db:"name"`
	Notes      *string   `json:"notes,omitempty" db:"notes"`
	IsEnabled  bool      `json:"is_enabled" db:"is_enabled"`
	CreatedBy  int       `json:"created_by" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`

	Rules []RecurringMatchRule `json:"rules" db:"-"`
}

// RecurringMatchRule — одно недельное правило повторения.
// DaysOfWeek: 0 = воскресенье ... 6 = суббота.
// TimeOfDay: "HH:mm" по JST (UTC+9) независимо от таймзоны сервера.
// LastScheduledAt — водяной знак: момент последнего materialized слота.
type RecurringMatchRule struct {
	ID               int        `json:"id" db:"id"`
	RecurringMatchID int        `json:"recurring_match_id" db:"recurring_match_id"`
	DaysOfWeek       []int      `json:"days_of_week" db:"days_of_week"`
	TimeOfDay        string     `json:"time_of_day" db:"time_of_day"`
	LastScheduledAt  *time.Time `json:"last_scheduled_at,omitempty" db:"last_scheduled_at"`
}
