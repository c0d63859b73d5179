package models

import "time"

// AccountSnapshot is the end-of-day state of an account.
type AccountSnapshot struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_account_day" json:"accountId"`
	Day       time.Time `gorm:"not null;uniqueIndex:idx_account_day" json:"day"`

	Balance      float64 `gorm:"not null" json:"balance"`
	Equity       float64 `gorm:"not null" json:"equity"`
	OpenTrades   int     `gorm:"not null" json:"openTrades"`
	ClosedTrades int     `gorm:"not null" json:"closedTrades"`
	DailyProfit  float64 `gorm:"not null" json:"dailyProfit"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (AccountSnapshot) TableName() string {
	return "account_snapshots"
}
