package models

// Category представляет категорию матча, соответствующую ENUM в БД.
type Category string

const (
	CategoryGP          Category = "GP"
	CategoryClassic     Category = "CLASSIC"
	CategoryTeamClassic Category = "TEAM_CLASSIC"
	CategoryTournament  Category = "TOURNAMENT"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryGP, CategoryClassic, CategoryTeamClassic, CategoryTournament:
		return true
	}
	return false
}

// categorySpanMinutes — минимальный интервал в минутах между двумя матчами
// одной категории. Категории, отсутствующие в таблице, не участвуют в
// проверке пересечений слотов.
var categorySpanMinutes = map[Category]int{
	CategoryGP:          120,
	CategoryClassic:     80,
	CategoryTeamClassic: 80,
}

// SpanMinutes returns the slot width used for collision checks, or 0 when the
// category is exempt from them.
func (c Category) SpanMinutes() int {
	return categorySpanMinutes[c]
}
