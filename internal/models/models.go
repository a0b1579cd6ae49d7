package models

import (
	"time"
)

// TrackedAsset is a cryptocurrency the service follows. Identity fields
// (CoinGeckoID, Symbol, Name) never change; the market snapshot fields are
// rewritten by the price synchronizer on every refresh cycle.
type TrackedAsset struct {
	ID                string     `json:"id" db:"id"`
	CoinGeckoID       string     `json:"coingecko_id" db:"coingecko_id"`
	Symbol            string     `json:"symbol" db:"symbol"`
	Name              string     `json:"name" db:"name"`
	CurrentPrice      float64    `json:"current_price" db:"current_price"`
	MarketCap         float64    `json:"market_cap" db:"market_cap"`
	MarketCapRank     int        `json:"market_cap_rank" db:"market_cap_rank"`
	TotalVolume       float64    `json:"total_volume" db:"total_volume"`
	PriceChange24h    float64    `json:"price_change_24h" db:"price_change_24h"`
	PriceChangePct24h float64    `json:"price_change_percentage_24h" db:"price_change_percentage_24h"`
	PriceChangePct7d  float64    `json:"price_change_percentage_7d" db:"price_change_percentage_7d"`
	PriceChangePct30d float64    `json:"price_change_percentage_30d" db:"price_change_percentage_30d"`
	ATH               float64    `json:"ath" db:"ath"`
	ATHDate           *time.Time `json:"ath_date,omitempty" db:"ath_date"`
	ATL               float64    `json:"atl" db:"atl"`
	ATLDate           *time.Time `json:"atl_date,omitempty" db:"atl_date"`
	LastUpdated       time.Time  `json:"last_updated" db:"last_updated"`
}

// PriceHistoryPoint is one append-only price observation, recorded once per
// asset per successful refresh cycle.
type PriceHistoryPoint struct {
	ID         string    `json:"id" db:"id"`
	AssetID    string    `json:"asset_id" db:"asset_id"`
	Price      float64   `json:"price" db:"price"`
	MarketCap  float64   `json:"market_cap" db:"market_cap"`
	Volume     float64   `json:"volume" db:"volume"`
	CapturedAt time.Time `json:"captured_at" db:"captured_at"`
}

// AlertDirection is the comparison side of a price alert.
type AlertDirection string

const (
	AlertAbove AlertDirection = "ABOVE"
	AlertBelow AlertDirection = "BELOW"
)

// AlertStatus is the lifecycle state of an alert rule. TRIGGERED and
// CANCELLED are terminal.
type AlertStatus string

const (
	AlertActive    AlertStatus = "ACTIVE"
	AlertTriggered AlertStatus = "TRIGGERED"
	AlertCancelled AlertStatus = "CANCELLED"
)

// AlertRule belongs to one user and one tracked asset. While ACTIVE, at most
// one rule per (user, asset, direction, target price) tuple may exist.
type AlertRule struct {
	ID          string         `json:"id" db:"id"`
	UserID      string         `json:"user_id" db:"user_id"`
	AssetID     string         `json:"asset_id" db:"asset_id"`
	Symbol      string         `json:"symbol" db:"symbol"`
	Direction   AlertDirection `json:"direction" db:"direction"`
	TargetPrice float64        `json:"target_price" db:"target_price"`
	Message     string         `json:"message,omitempty" db:"message"`
	Status      AlertStatus    `json:"status" db:"status"`
	TriggeredAt *time.Time     `json:"triggered_at,omitempty" db:"triggered_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// TransactionType is the immutable kind of a portfolio transaction.
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// Transaction is the source of truth for holding recomputation. Any
// create/update/delete triggers a full recompute of the affected
// (portfolio, asset) holding.
type Transaction struct {
	ID           string          `json:"id" db:"id"`
	PortfolioID  string          `json:"portfolio_id" db:"portfolio_id"`
	AssetID      string          `json:"asset_id" db:"asset_id"`
	Type         TransactionType `json:"type" db:"type"`
	Quantity     float64         `json:"quantity" db:"quantity"`
	PricePerUnit float64         `json:"price_per_unit" db:"price_per_unit"`
	FeeAmount    float64         `json:"fee_amount" db:"fee_amount"`
	TotalAmount  float64         `json:"total_amount" db:"total_amount"`
	Notes        string          `json:"notes,omitempty" db:"notes"`
	ExecutedAt   time.Time       `json:"executed_at" db:"executed_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Holding is a portfolio's derived position in one asset, unique per
// (portfolio, asset). Never authored directly; always recomputed from the
// transaction history and deleted when quantity reaches zero.
type Holding struct {
	PortfolioID     string    `json:"portfolio_id" db:"portfolio_id"`
	AssetID         string    `json:"asset_id" db:"asset_id"`
	Quantity        float64   `json:"quantity" db:"quantity"`
	AverageBuyPrice float64   `json:"average_buy_price" db:"average_buy_price"`
	TotalCost       float64   `json:"total_cost" db:"total_cost"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Portfolio groups holdings and transactions for one user. The total fields
// are cached aggregates refreshed after every holding recompute.
type Portfolio struct {
	ID                 string    `json:"id" db:"id"`
	UserID             string    `json:"user_id" db:"user_id"`
	Name               string    `json:"name" db:"name"`
	TotalValue         float64   `json:"total_value" db:"total_value"`
	TotalCost          float64   `json:"total_cost" db:"total_cost"`
	TotalProfitLoss    float64   `json:"total_profit_loss" db:"total_profit_loss"`
	TotalProfitLossPct float64   `json:"total_profit_loss_percentage" db:"total_profit_loss_percentage"`
	IsActive           bool      `json:"is_active" db:"is_active"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}
