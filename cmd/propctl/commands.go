package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"propdesk/internal/analytics"
	"propdesk/internal/db"
	"propdesk/internal/models"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
	"propdesk/internal/service"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			if err := db.AutoMigrate(e.conn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newAccountsCmd(opts *rootOptions) *cobra.Command {
	var (
		owner  string
		status string
	)
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List challenge accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			params := repository.ListAccountsParams{OwnerID: owner}
			if status != "" {
				params.Statuses = []models.AccountStatus{models.AccountStatus(status)}
			}
			items, err := e.store.ListAccounts(commandContext(cmd), params)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("ID", "Owner", "Name", "Firm", "Status", "Balance", "Equity", "Return %")
			for _, acc := range items {
				ret := 0.0
				if acc.Balance > 0 {
					ret = (acc.Equity - acc.Balance) / acc.Balance * 100
				}
				table.Append(
					acc.ID,
					acc.OwnerID,
					acc.Name,
					acc.PropFirm,
					string(acc.Status),
					fmt.Sprintf("%.2f", acc.Balance),
					fmt.Sprintf("%.2f", acc.Equity),
					fmt.Sprintf("%.2f", ret),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only accounts of this user id")
	cmd.Flags().StringVar(&status, "status", "", "evaluation, verified, trading, failed or paused")
	return cmd
}

func newMetricsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <accountId>",
		Short: "Print performance metrics of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := commandContext(cmd)
			acc, err := e.store.GetAccount(ctx, args[0])
			if err != nil {
				return err
			}
			if acc == nil {
				return fmt.Errorf("account %s not found", args[0])
			}
			m, err := (&analytics.Analyzer{Repo: e.store}).ComputeMetrics(ctx, *acc)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Metric", "Value")
			table.Append("trades", fmt.Sprintf("%d", m.TotalTrades))
			table.Append("win rate %", fmt.Sprintf("%.2f", m.WinRate))
			table.Append("profit factor", fmt.Sprintf("%.2f", m.ProfitFactor))
			table.Append("total profit", fmt.Sprintf("%.2f", m.TotalProfit))
			table.Append("return %", fmt.Sprintf("%.2f", m.TotalReturn))
			table.Append("max drawdown %", fmt.Sprintf("%.2f", m.MaxDrawdown))
			table.Append("sharpe", fmt.Sprintf("%.2f", m.SharpeRatio))
			table.Render()

			th := analytics.Thresholds{
				MinWinRate:      e.cfg.Performance.MinWinRate,
				MinProfitFactor: e.cfg.Performance.MinProfitFactor,
				MaxDrawdown:     e.cfg.Performance.MaxDrawdown,
				MinSharpe:       e.cfg.Performance.MinSharpe,
			}
			if m.TotalTrades < e.cfg.Performance.MinTrades {
				return nil
			}
			for _, b := range th.Evaluate(m) {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", b.Message)
			}
			return nil
		},
	}
}

func newRiskCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "risk <accountId>",
		Short: "Print the current risk snapshot of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			v := &risk.Validator{Config: e.cfg.Risk, Repo: e.store, Logger: e.log}
			ctx := commandContext(cmd)
			// A zero-size probe shows where the account stands against every rule.
			res, err := v.Validate(ctx, args[0], risk.Proposal{})
			if err != nil {
				return err
			}
			snap, err := v.Snapshot(ctx, args[0])
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Check", "Status", "Value", "Limit", "Message")
			for _, c := range res.Checks {
				table.Append(c.Name, string(c.Status), fmt.Sprintf("%.2f", c.Value), fmt.Sprintf("%.2f", c.Limit), c.Message)
			}
			table.Render()
			if snap.Breached() {
				fmt.Fprintln(cmd.OutOrStdout(), "drawdown limit breached")
			}
			return nil
		},
	}
}

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write daily account snapshots (default: yesterday, UTC)",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			svc := &service.SnapshotService{Repo: e.store, Logger: e.log}
			if day == "" {
				return svc.TakeDaily(commandContext(cmd))
			}
			d, err := time.Parse("2006-01-02", day)
			if err != nil {
				return fmt.Errorf("invalid --day: %w", err)
			}
			return svc.Take(commandContext(cmd), d)
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day to snapshot, YYYY-MM-DD")
	return cmd
}

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or change runtime settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List settings (sensitive values redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			items, err := settingsService(e).List(commandContext(cmd))
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Key", "Value", "Updated")
			for _, it := range items {
				table.Append(it.Key, string(it.Value), it.UpdatedAt.UTC().Format(time.RFC3339))
			}
			table.Render()
			return nil
		},
	}, &cobra.Command{
		Use:   "set <key> <json-value>",
		Short: "Store a setting; credentials are sealed when an encryption key is configured",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			raw := json.RawMessage(args[1])
			if !json.Valid(raw) {
				// Bare words are taken as strings.
				raw, _ = json.Marshal(args[1])
			}
			if _, err := settingsService(e).Set(commandContext(cmd), args[0], raw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
			return nil
		},
	})
	return cmd
}

func settingsService(e *env) *service.SystemSettingsService {
	return &service.SystemSettingsService{
		Repo:   e.store,
		Cipher: service.NewSettingsCipher(e.cfg.Settings.EncryptionKey, e.cfg.Settings.PreviousEncryptionKey),
	}
}
