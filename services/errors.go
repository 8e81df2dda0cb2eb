package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed       = errors.New("validation failed")
	ErrCategoryInvalid        = errors.New("invalid category")
	ErrInGameModeRequired     = errors.New("in-game mode is required")
	ErrPlayerBoundsInvalid    = errors.New("min players must be positive and not exceed max players")
	ErrRulesRequired          = errors.New("at least one rule is required")
	ErrRuleDaysOfWeekRequired = errors.New("rule must include at least one day of week")
	ErrRuleDayOfWeekInvalid   = errors.New("rule day of week must be between 0 (Sunday) and 6 (Saturday)")
	ErrRuleTimeOfDayInvalid   = errors.New("rule time of day must be a zero-padded HH:mm value")
	ErrRuleOverlap            = errors.New("rule time windows overlap")

	// Ошибки конфликтов
	ErrRecurringMatchCategoryConflict = errors.New("a recurring match already exists for this category")
	ErrMatchSlotTaken                 = errors.New("a match is already scheduled for this slot")

	// Ошибки, специфичные для сущностей
	ErrRecurringMatchNotFound = errors.New("recurring match not found")
	ErrActiveSeasonNotFound   = errors.New("no active season for category")
)
