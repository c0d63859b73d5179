package models

import (
	"time"

	"gorm.io/datatypes"
)

type StrategyType string

const (
	StrategyTrendFollowing StrategyType = "TREND_FOLLOWING"
	StrategyMeanReversion  StrategyType = "MEAN_REVERSION"
	StrategyScalping       StrategyType = "SCALPING"
)

func (t StrategyType) Valid() bool {
	switch t {
	case StrategyTrendFollowing, StrategyMeanReversion, StrategyScalping:
		return true
	}
	return false
}

// Strategy is a per-account strategy configuration.
type Strategy struct {
	ID        string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	AccountID string       `gorm:"type:varchar(36);not null;index" json:"accountId"`
	Type      StrategyType `gorm:"type:varchar(30);not null" json:"type"`
	Enabled   bool         `gorm:"not null;index" json:"enabled"`

	// Params holds the numeric parameter map, e.g. {"ma_short": 20}.
	Params  datatypes.JSON `gorm:"not null" json:"parameters"`
	Symbols datatypes.JSON `json:"symbols,omitempty"`
	// Performance is the last snapshot written by the performance tick.
	Performance datatypes.JSON `json:"performance,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Strategy) TableName() string {
	return "strategies"
}

type StrategyPerformance struct {
	TotalTrades  int       `json:"totalTrades"`
	WinRate      float64   `json:"winRate"`
	ProfitFactor float64   `json:"profitFactor"`
	MaxDrawdown  float64   `json:"maxDrawdown"`
	SharpeRatio  float64   `json:"sharpeRatio"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
