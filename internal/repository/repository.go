package repository

import (
	"context"
	"time"

	"propdesk/internal/models"
)

// Repository is the persistence port. Get* methods return (nil, nil) when the
// record does not exist. No method spans more than one key, so callers never
// need cross-key transactions.
type Repository interface {
	InsertAccount(ctx context.Context, item *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context, params ListAccountsParams) ([]models.Account, error)
	SaveAccount(ctx context.Context, item *models.Account) error
	DeleteAccount(ctx context.Context, id string) error

	InsertTrade(ctx context.Context, item *models.Trade) error
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	CountTrades(ctx context.Context, params ListTradesParams) (int64, error)
	SaveTrade(ctx context.Context, item *models.Trade) error
	DeleteTradesUpdatedBefore(ctx context.Context, status models.TradeStatus, before time.Time) (int64, error)

	InsertStrategy(ctx context.Context, item *models.Strategy) error
	GetStrategy(ctx context.Context, id string) (*models.Strategy, error)
	ListStrategies(ctx context.Context, params ListStrategiesParams) ([]models.Strategy, error)
	SaveStrategy(ctx context.Context, item *models.Strategy) error
	DeleteStrategy(ctx context.Context, id string) error
	DeleteStrategiesByAccount(ctx context.Context, accountID string) (int64, error)

	InsertUser(ctx context.Context, item *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error

	UpsertAccountSnapshot(ctx context.Context, item *models.AccountSnapshot) error
	ListAccountSnapshots(ctx context.Context, accountID string, limit int) ([]models.AccountSnapshot, error)
	DeleteAccountSnapshotsBefore(ctx context.Context, before time.Time) (int64, error)
}

type ListAccountsParams struct {
	OwnerID  string
	Statuses []models.AccountStatus
	Limit    int
}

// Trade ordering columns.
const (
	OrderByCreatedAt = "created_at"
	OrderByExitTime  = "exit_time"
)

type ListTradesParams struct {
	AccountID string
	Statuses  []models.TradeStatus
	Symbol    string
	Strategy  models.StrategyType

	CreatedFrom *time.Time
	ClosedFrom  *time.Time

	// OrderBy is created_at (default) or exit_time; Asc flips the default descending order.
	OrderBy string
	Asc     bool
	Limit   int
}

type ListStrategiesParams struct {
	AccountID string
	Enabled   *bool
}
