package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"propdesk/internal/config"
	"propdesk/internal/db"
	"propdesk/internal/logger"
	"propdesk/internal/repository"
	gormrepository "propdesk/internal/repository/gorm"
)

type rootOptions struct {
	configPath string
	envOnly    bool
}

// env is what every subcommand needs once flags are parsed.
type env struct {
	cfg    config.Config
	log    *zap.Logger
	conn   *db.DB
	store  repository.Repository
	closer func()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "propctl",
		Short:         "Operator tooling for the propdesk database",
		SilenceUsage: true,
	}

	defaultPath := os.Getenv("PD_CONFIG")
	if defaultPath == "" {
		defaultPath = "config/config.yaml"
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultPath, "config file")
	cmd.PersistentFlags().BoolVar(&opts.envOnly, "env-only", false, "read configuration from PD_* variables only")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newAccountsCmd(opts),
		newMetricsCmd(opts),
		newRiskCmd(opts),
		newSnapshotCmd(opts),
		newSettingsCmd(opts),
	)
	return cmd
}

func (o *rootOptions) open() (*env, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(o.configPath, o.envOnly)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(cfg.DB.Driver, "memory") {
		return nil, errors.New("propctl needs a persistent db driver (postgres or sqlite)")
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:   cfg,
		log:   log,
		conn:  conn,
		store: gormrepository.New(conn.Gorm),
		closer: func() {
			_ = db.Close(conn)
			_ = log.Sync()
		},
	}, nil
}

func (e *env) Close() {
	if e != nil && e.closer != nil {
		e.closer()
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
