package models

import "time"

type MatchStatus string

const (
	MatchStatusWaiting    MatchStatus = "WAITING"
	MatchStatusInProgress MatchStatus = "IN_PROGRESS"
	MatchStatusCompleted  MatchStatus = "COMPLETED"
	MatchStatusCanceled   MatchStatus = "CANCELED"
)

// Match представляет сгенерированный или созданный вручную матч.
// MatchNumber — сквозная нумерация внутри сезона.
type Match struct {
	ID               int         `json:"id" db:"id"`
	SeasonID         int         `json:"season_id" db:"season_id"`
	MatchNumber      int         `json:"match_number" db:"match_number"`
	RecurringMatchID *int        `json:"recurring_match_id,omitempty" db:"recurring_match_id"`
	InGameMode       string      `json:"in_game_mode" db:"in_game_mode"`
	League           *string     `json:"league,omitempty" db:"league"`
	Status           MatchStatus `json:"status" db:"status"`
	ScheduledStart   time.Time   `json:"scheduled_start" db:"scheduled_start"`
	MinPlayers       int         `json:"min_players" db:"min_players"`
	MaxPlayers       int         `json:"max_players" db:"max_players"`
	Notes            *string     `json:"notes,omitempty" db:"notes"`
	CreatedBy        int         `json:"created_by" db:"created_by"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
}
