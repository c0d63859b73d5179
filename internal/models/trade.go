package models

import "time"

type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// Sign is +1 for BUY and -1 for SELL.
func (s TradeSide) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

func (s TradeSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeOpen      TradeStatus = "open"
	TradeClosed    TradeStatus = "closed"
	TradeCancelled TradeStatus = "cancelled"
)

func (s TradeStatus) Valid() bool {
	switch s {
	case TradePending, TradeOpen, TradeClosed, TradeCancelled:
		return true
	}
	return false
}

func (s TradeStatus) Terminal() bool {
	return s == TradeClosed || s == TradeCancelled
}

type Trade struct {
	ID        string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	AccountID string      `gorm:"type:varchar(36);not null;index" json:"accountId"`
	Symbol    string      `gorm:"type:varchar(20);not null;index" json:"symbol"`
	Side      TradeSide   `gorm:"type:varchar(4);not null" json:"type"`
	Status    TradeStatus `gorm:"type:varchar(12);not null;index" json:"status"`

	EntryPrice float64    `gorm:"not null" json:"entryPrice"`
	EntryTime  time.Time  `gorm:"not null" json:"entryTime"`
	ExitPrice  *float64   `json:"exitPrice,omitempty"`
	ExitTime   *time.Time `gorm:"index" json:"exitTime,omitempty"`

	Volume     float64 `gorm:"not null" json:"volume"`
	StopLoss   float64 `gorm:"not null" json:"stopLoss"`
	TakeProfit float64 `gorm:"not null" json:"takeProfit"`

	Profit        *float64 `json:"profit,omitempty"`
	ProfitPercent *float64 `json:"profitPercent,omitempty"`

	StrategyTag  StrategyType `gorm:"column:strategy;type:varchar(30);not null" json:"strategy"`
	Confidence   float64      `gorm:"not null" json:"confidence"`
	RiskReward   float64      `gorm:"not null" json:"riskReward"`
	BrokerTicket string       `gorm:"type:varchar(64)" json:"ticket,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Trade) TableName() string {
	return "trades"
}

// ProfitValue returns the realized profit, 0 while the trade is not closed.
func (t Trade) ProfitValue() float64 {
	if t.Profit == nil {
		return 0
	}
	return *t.Profit
}

func (t Trade) ProfitPercentValue() float64 {
	if t.ProfitPercent == nil {
		return 0
	}
	return *t.ProfitPercent
}
