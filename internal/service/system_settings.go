package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"

	"propdesk/internal/apperr"
	"propdesk/internal/config"
	"propdesk/internal/models"
	"propdesk/internal/repository"
)

const (
	FeatureStrategyEngine = "feature.strategy_engine"
	FeatureMonitoring     = "feature.monitoring"
	FeatureNotifier       = "feature.notifier"
)

// Credential settings override the notify section of the config file.
const (
	SettingWebhookURL       = "notify.webhook_url"
	SettingTelegramBotToken = "notify.telegram_bot_token"
	SettingTelegramChatID   = "notify.telegram_chat_id"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureStrategyEngine: true,
		FeatureMonitoring:     true,
		FeatureNotifier:       true,
	}
}

var featureDescriptions = map[string]string{
	FeatureStrategyEngine: "run the strategy loop",
	FeatureMonitoring:     "run the monitoring jobs",
	FeatureNotifier:       "push alerts to notification channels",
}

type SystemSettingsService struct {
	Repo   repository.Repository
	Clock  clockwork.Clock
	Cipher *SettingsCipher
}

// EnsureDefaultSwitches inserts missing switches. Stored values are left
// alone so an operator's choice survives restarts.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := s.now()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: featureDescriptions[key],
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

// Switch returns a gate for key suitable for the schedulers' Enabled hooks.
func (s *SystemSettingsService) Switch(key string, fallback bool) func(ctx context.Context) bool {
	return func(ctx context.Context) bool {
		return s.IsEnabled(ctx, key, fallback)
	}
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	raw, _ := json.Marshal(enabled)
	_, err := s.Set(ctx, key, raw)
	return err
}

// List returns every setting with credential values redacted.
func (s *SystemSettingsService) List(ctx context.Context) ([]models.SystemSetting, error) {
	items, err := s.Repo.ListSystemSettings(ctx)
	if err != nil {
		return nil, apperr.Internal("list settings", err)
	}
	for i := range items {
		if IsSensitiveSetting(items[i].Key) {
			items[i].Value = datatypes.JSON(RedactedValue)
		}
	}
	return items, nil
}

// StringValue returns a string setting, decrypting it when sealed.
func (s *SystemSettingsService) StringValue(ctx context.Context, key string) (string, bool) {
	if s == nil || s.Repo == nil {
		return "", false
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, strings.TrimSpace(key))
	if err != nil || item == nil {
		return "", false
	}
	var out string
	if err := json.Unmarshal(s.Cipher.Open(item.Key, item.Value), &out); err != nil {
		return "", false
	}
	return out, strings.TrimSpace(out) != ""
}

// Set stores a raw JSON value. Feature switches only accept booleans.
func (s *SystemSettingsService) Set(ctx context.Context, key string, value json.RawMessage) (*models.SystemSetting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperr.Validation("MISSING_FIELDS", "key is required", map[string]string{"key": "required"})
	}
	if !json.Valid(value) {
		return nil, apperr.Validation("INVALID_VALUE", "value must be JSON", map[string]string{"value": "invalid"})
	}
	if _, ok := DefaultFeatureSwitches()[key]; ok {
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return nil, apperr.Validation("INVALID_VALUE", "feature switches take a boolean", map[string]string{"value": "boolean"})
		}
	}
	existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil {
		return nil, apperr.Internal("get setting", err)
	}
	now := s.now()
	item := existing
	if item == nil {
		item = &models.SystemSetting{Key: key, Description: featureDescriptions[key], CreatedAt: now}
	}
	item.Value = datatypes.JSON(s.Cipher.Seal(key, value))
	item.UpdatedAt = now
	if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
		return nil, apperr.Internal("save setting", err)
	}
	out := *item
	if IsSensitiveSetting(key) {
		out.Value = datatypes.JSON(RedactedValue)
	}
	return &out, nil
}

func (s *SystemSettingsService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

// NotifyConfig returns cfg with any stored notification credentials applied.
func (s *SystemSettingsService) NotifyConfig(ctx context.Context, cfg config.NotifyConfig) config.NotifyConfig {
	if v, ok := s.StringValue(ctx, SettingWebhookURL); ok {
		cfg.WebhookURL = v
	}
	if v, ok := s.StringValue(ctx, SettingTelegramBotToken); ok {
		cfg.TelegramBotToken = v
	}
	if v, ok := s.StringValue(ctx, SettingTelegramChatID); ok {
		cfg.TelegramChatID = v
	}
	return cfg
}
