// Package core contains the business logic for taskflow: tag parsing and
// ordering, tag-to-action dispatch, the batch workflow engine, prompt
// rendering, configuration and the retry policy shared by store adapters.
package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/taskflow/internal/logging"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

// Notion API defaults.
const (
	DefaultNotionBaseURL = "https://api.notion.com/v1"
	DefaultNotionVersion = "2022-06-28"
)

// MaxRetryAttempts bounds retry.max_attempts.
const MaxRetryAttempts = 10

// ConfigurationManager loads the process configuration from the working
// directory and validates it.
type ConfigurationManager interface {
	Load() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
}

// viperConfigManager reads .env and .taskflow.yaml from basePath with Viper.
// Real environment variables take precedence over both files.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads its files
// from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a Config populated with defaults. Credentials are
// left empty.
func DefaultConfig() *models.Config {
	return &models.Config{
		Backend: models.BackendNotion,
		Notion: models.NotionConfig{
			BaseURL: DefaultNotionBaseURL,
			Version: DefaultNotionVersion,
			Properties: models.NotionPropertyConf{
				Tags:        "MCP",
				Status:      "Status",
				Priority:    "Priority",
				Description: "Description",
			},
		},
		FileStore: models.FileStoreConfig{Path: "tasks.yaml"},
		Retry: models.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
		},
		Images: models.ImageConfig{
			CacheDir: filepath.Join(os.TempDir(), "taskflow-images"),
		},
		Log: models.LogConfig{
			Level:  "info",
			Format: "text",
		},
		EventsPath: filepath.Join(".taskflow", "events.jsonl"),
		Schedule: models.ScheduleConfig{
			Cron:  "*/15 * * * *",
			Limit: DefaultBatchLimit,
		},
		Alerts: models.AlertConfig{
			FailedTagThreshold:  3,
			UnrecognizedTagDays: 7,
		},
	}
}

// Load builds the configuration. Missing files are not an error; missing
// credentials are reported by ValidateConfig, not here.
func (cm *viperConfigManager) Load() (*models.Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigName(".taskflow")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetDefault("backend", string(def.Backend))
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")
	v.SetDefault("notion.base_url", def.Notion.BaseURL)
	v.SetDefault("notion.version", def.Notion.Version)
	v.SetDefault("notion.properties.tags", def.Notion.Properties.Tags)
	v.SetDefault("notion.properties.status", def.Notion.Properties.Status)
	v.SetDefault("notion.properties.priority", def.Notion.Properties.Priority)
	v.SetDefault("notion.properties.description", def.Notion.Properties.Description)
	v.SetDefault("file_store.path", def.FileStore.Path)
	v.SetDefault("retry.max_attempts", def.Retry.MaxAttempts)
	v.SetDefault("retry.base_delay", def.Retry.BaseDelay)
	v.SetDefault("images.cache_dir", def.Images.CacheDir)
	v.SetDefault("images.index_path", "")
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.path", "")
	v.SetDefault("events_path", def.EventsPath)
	v.SetDefault("schedule.cron", def.Schedule.Cron)
	v.SetDefault("schedule.limit", def.Schedule.Limit)
	v.SetDefault("schedule.dry_run", def.Schedule.DryRun)
	v.SetDefault("alerts.failed_tag_threshold", def.Alerts.FailedTagThreshold)
	v.SetDefault("alerts.unrecognized_tag_days", def.Alerts.UnrecognizedTagDays)
	v.SetDefault("notifications.slack_webhook_url", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading .taskflow.yaml: %w", err)
		}
	}

	dotenv, err := cm.readDotEnv()
	if err != nil {
		return nil, err
	}
	if len(dotenv) > 0 {
		if err := v.MergeConfigMap(dotenv); err != nil {
			return nil, fmt.Errorf("merging .env: %w", err)
		}
	}

	v.SetEnvPrefix("TASKFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("notion.token", "NOTION_TOKEN", "TASKFLOW_NOTION_TOKEN")
	_ = v.BindEnv("notion.database_id", "NOTION_DATABASE_ID", "TASKFLOW_NOTION_DATABASE_ID")
	_ = v.BindEnv("notifications.slack_webhook_url", "SLACK_WEBHOOK_URL", "TASKFLOW_NOTIFICATIONS_SLACK_WEBHOOK_URL")

	cfg := &models.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	cfg.WorkDir = cm.basePath
	cfg.FileStore.Path = cm.resolve(cfg.FileStore.Path)
	cfg.EventsPath = cm.resolve(cfg.EventsPath)
	cfg.Images.CacheDir = cm.resolve(cfg.Images.CacheDir)
	if cfg.Images.IndexPath == "" {
		cfg.Images.IndexPath = filepath.Join(cfg.Images.CacheDir, "index.db")
	} else {
		cfg.Images.IndexPath = cm.resolve(cfg.Images.IndexPath)
	}
	if cfg.Log.Path != "" {
		cfg.Log.Path = cm.resolve(cfg.Log.Path)
	}

	return cfg, nil
}

// readDotEnv reads NOTION_TOKEN, NOTION_DATABASE_ID and SLACK_WEBHOOK_URL from
// basePath/.env and returns them as a nested config map. A missing file
// yields an empty map.
func (cm *viperConfigManager) readDotEnv() (map[string]any, error) {
	path := filepath.Join(cm.basePath, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checking .env: %w", err)
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	notion := map[string]any{}
	if s := env.GetString("notion_token"); s != "" {
		notion["token"] = s
	}
	if s := env.GetString("notion_database_id"); s != "" {
		notion["database_id"] = s
	}

	out := map[string]any{}
	if len(notion) > 0 {
		out["notion"] = notion
	}
	if s := env.GetString("slack_webhook_url"); s != "" {
		out["notifications"] = map[string]any{"slack_webhook_url": s}
	}
	return out, nil
}

func (cm *viperConfigManager) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cm.basePath, path)
}

// ValidateConfig checks cfg and reports every problem at once. The returned
// error wraps ErrConfiguration.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	return ValidateConfig(cfg)
}

// ValidateConfig checks cfg and reports every problem at once. The returned
// error wraps ErrConfiguration.
func ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", ErrConfiguration)
	}

	var errs []string

	switch cfg.Backend {
	case models.BackendNotion:
		if cfg.Notion.Token == "" {
			errs = append(errs, "NOTION_TOKEN environment variable is required")
		}
		if cfg.Notion.DatabaseID == "" {
			errs = append(errs, "NOTION_DATABASE_ID environment variable is required")
		}
		if cfg.Notion.BaseURL == "" {
			errs = append(errs, "notion.base_url must not be empty")
		}
		p := cfg.Notion.Properties
		if p.Tags == "" || p.Status == "" || p.Priority == "" || p.Description == "" {
			errs = append(errs, "notion.properties.{tags,status,priority,description} must all be set")
		}
	case models.BackendFile:
		if cfg.FileStore.Path == "" {
			errs = append(errs, "file_store.path must not be empty when backend is file")
		}
	default:
		errs = append(errs, fmt.Sprintf("backend %q is invalid, must be one of: notion, file", cfg.Backend))
	}

	if cfg.Retry.MaxAttempts < 1 || cfg.Retry.MaxAttempts > MaxRetryAttempts {
		errs = append(errs, fmt.Sprintf("retry.max_attempts must be between 1 and %d, got %d", MaxRetryAttempts, cfg.Retry.MaxAttempts))
	}
	if cfg.Retry.BaseDelay < 0 {
		errs = append(errs, fmt.Sprintf("retry.base_delay must not be negative, got %s", cfg.Retry.BaseDelay))
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid", cfg.Log.Level))
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		errs = append(errs, fmt.Sprintf("log.format %q is invalid, must be one of: json, text", cfg.Log.Format))
	}

	if cfg.Schedule.Limit < 1 {
		errs = append(errs, fmt.Sprintf("schedule.limit must be a positive integer, got %d", cfg.Schedule.Limit))
	}
	if cfg.Alerts.FailedTagThreshold < 1 {
		errs = append(errs, fmt.Sprintf("alerts.failed_tag_threshold must be at least 1, got %d", cfg.Alerts.FailedTagThreshold))
	}
	if cfg.Alerts.UnrecognizedTagDays < 1 {
		errs = append(errs, fmt.Sprintf("alerts.unrecognized_tag_days must be at least 1, got %d", cfg.Alerts.UnrecognizedTagDays))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrConfiguration, strings.Join(errs, "\n  - "))
	}
	return nil
}

// RetryPolicyFromConfig builds the store retry policy from cfg.
func RetryPolicyFromConfig(cfg models.RetryConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay >= 0 {
		p.BaseDelay = cfg.BaseDelay
	}
	return p
}
