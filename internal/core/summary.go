package core

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Amount   Money  `json:"amount"`
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"` // 1-12
	Total      Money            `json:"total"`
	Recurring  Money            `json:"recurring"`
	Count      int              `json:"count"`
	ByCategory []CategoryAmount `json:"byCategory"`
}
