package models

import "time"

type AlertSeverity string

const (
	AlertInfo    AlertSeverity = "info"
	AlertWarning AlertSeverity = "warning"
	AlertError   AlertSeverity = "error"
	AlertSuccess AlertSeverity = "success"
)

// Alert is derived from account state and kept in memory only.
type Alert struct {
	ID        string        `json:"id"`
	AccountID string        `json:"accountId"`
	Kind      string        `json:"kind"`
	Severity  AlertSeverity `json:"type"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Read      bool          `json:"read"`
	CreatedAt time.Time     `json:"createdAt"`
}
