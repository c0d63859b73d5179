package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdesk/internal/config"
	"propdesk/internal/models"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	d, err := Open(config.DBConfig{Driver: "sqlite", DSN: "file:migrate_test?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(d) })

	require.NoError(t, Ping(d))
	require.NoError(t, AutoMigrate(d))
	for _, m := range []any{&models.Account{}, &models.Trade{}, &models.Strategy{}, &models.User{}, &models.SystemSetting{}, &models.AccountSnapshot{}} {
		assert.True(t, d.Gorm.Migrator().HasTable(m))
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(config.DBConfig{Driver: "oracle"})
	assert.Error(t, err)
}
