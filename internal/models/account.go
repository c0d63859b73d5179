package models

import "time"

type AccountStatus string

const (
	AccountEvaluation AccountStatus = "evaluation"
	AccountVerified   AccountStatus = "verified"
	AccountTrading    AccountStatus = "trading"
	AccountFailed     AccountStatus = "failed"
	AccountPaused     AccountStatus = "paused"
)

// Account is a funded-account challenge. The prop firm limits are copied at
// creation and never change afterwards.
type Account struct {
	ID         string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID    string        `gorm:"type:varchar(36);not null;index" json:"userId"`
	Name       string        `gorm:"type:varchar(120);not null" json:"name"`
	Balance    float64       `gorm:"not null" json:"balance"`
	Equity     float64       `gorm:"not null" json:"equity"`
	Margin     float64       `gorm:"not null;default:0" json:"margin"`
	FreeMargin float64       `gorm:"not null" json:"freeMargin"`
	Status     AccountStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	PropFirm          string  `gorm:"type:varchar(40);not null" json:"propFirm"`
	MaxDrawdownPct    float64 `gorm:"not null" json:"maxDrawdown"`
	DailyLossLimitPct float64 `gorm:"not null" json:"dailyLossLimit"`
	ProfitSplitPct    float64 `gorm:"not null" json:"profitSplit"`

	LastTradeAt *time.Time `json:"lastTradeAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Account) TableName() string {
	return "accounts"
}
