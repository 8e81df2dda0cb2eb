package models

import "time"

// Season представляет сезон в рамках одной категории.
// Активный сезон на категорию может быть только один.
type Season struct {
	ID        int       `json:"id" db:"id"`
	Category  Category  `json:"category" db:"category"`
	Name      string    `json:"name" db:"name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	StartedAt time.Time `json:"started_at" db:"started_at"`
}
