package models

import "time"

// Backend selects which TaskStore implementation serves tasks.
type Backend string

const (
	BackendNotion Backend = "notion"
	BackendFile   Backend = "file"
)

// NotionConfig holds the connection settings for the Notion task database.
type NotionConfig struct {
	Token      string             `yaml:"-" mapstructure:"token"`
	DatabaseID string             `yaml:"database_id" mapstructure:"database_id"`
	BaseURL    string             `yaml:"base_url" mapstructure:"base_url"`
	Version    string             `yaml:"version" mapstructure:"version"`
	Properties NotionPropertyConf `yaml:"properties" mapstructure:"properties"`
}

// NotionPropertyConf names the database properties taskflow reads and writes.
type NotionPropertyConf struct {
	Tags        string `yaml:"tags" mapstructure:"tags"`
	Status      string `yaml:"status" mapstructure:"status"`
	Priority    string `yaml:"priority" mapstructure:"priority"`
	Description string `yaml:"description" mapstructure:"description"`
}

// FileStoreConfig points the file backend at its YAML task file.
type FileStoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RetryConfig configures retries of transient store failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
}

// ImageConfig configures the task image cache.
type ImageConfig struct {
	CacheDir  string `yaml:"cache_dir" mapstructure:"cache_dir"`
	IndexPath string `yaml:"index_path" mapstructure:"index_path"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// ScheduleConfig configures unattended batch runs.
type ScheduleConfig struct {
	Cron   string `yaml:"cron" mapstructure:"cron"`
	Limit  int    `yaml:"limit" mapstructure:"limit"`
	DryRun bool   `yaml:"dry_run" mapstructure:"dry_run"`
}

// AlertConfig holds alert thresholds.
type AlertConfig struct {
	FailedTagThreshold  int `yaml:"failed_tag_threshold" mapstructure:"failed_tag_threshold"`
	UnrecognizedTagDays int `yaml:"unrecognized_tag_days" mapstructure:"unrecognized_tag_days"`
}

// NotificationConfig configures where alert summaries are sent.
type NotificationConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url" mapstructure:"slack_webhook_url"`
}

// Config is the full process configuration, built once at startup from .env,
// .taskflow.yaml and TASKFLOW_* environment variables.
type Config struct {
	WorkDir       string             `yaml:"-" mapstructure:"-"`
	Backend       Backend            `yaml:"backend" mapstructure:"backend"`
	Notion        NotionConfig       `yaml:"notion" mapstructure:"notion"`
	FileStore     FileStoreConfig    `yaml:"file_store" mapstructure:"file_store"`
	Retry         RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Images        ImageConfig        `yaml:"images" mapstructure:"images"`
	Log           LogConfig          `yaml:"log" mapstructure:"log"`
	EventsPath    string             `yaml:"events_path" mapstructure:"events_path"`
	Schedule      ScheduleConfig     `yaml:"schedule" mapstructure:"schedule"`
	Alerts        AlertConfig        `yaml:"alerts" mapstructure:"alerts"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
}
