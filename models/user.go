package models

import "time"

// User is a platform account. Traders can be copied and ranked; any user can
// copy, follow, and receive feed items.
type User struct {
	ID                  string    `json:"id"`
	Username            string    `json:"username"`
	IsTrader            bool      `json:"is_trader"`
	CopyFeaturesEnabled bool      `json:"copy_features_enabled"`
	LastActive          time.Time `json:"last_active"`
	CreatedAt           time.Time `json:"created_at"`
}

// Account holds the user's spendable balance and marked portfolio value.
type Account struct {
	UserID           string    `json:"user_id"`
	AvailableBalance float64   `json:"available_balance"`
	PortfolioValue   float64   `json:"portfolio_value"`
	UpdatedAt        time.Time `json:"updated_at"`
}
