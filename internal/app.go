// Package internal provides the App struct that wires all components of
// taskflow together and initializes the CLI layer.
package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/taskflow/internal/cli"
	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/internal/imagecache"
	"github.com/valter-silva-au/taskflow/internal/logging"
	"github.com/valter-silva-au/taskflow/internal/notion"
	"github.com/valter-silva-au/taskflow/internal/observability"
	"github.com/valter-silva-au/taskflow/internal/storage"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

// App holds all service dependencies for taskflow.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.Config
	Logger    *logging.Logger

	// Task store and workflow. Nil when the configuration is invalid; the
	// reason is in InitErr.
	Store   core.TaskStore
	Engine  *core.Engine
	InitErr error

	// Image cache. Nil when the index cannot be opened.
	Images *imagecache.Cache

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components of taskflow. basePath is the
// directory holding .env and .taskflow.yaml, usually the working directory.
//
// An invalid configuration is not an error here: commands that do not need
// the task store (version, config, metrics) keep working, and the others
// report InitErr.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	app.Config = cfg

	// --- Logging ---
	logCfg := logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Path: cfg.Log.Path}
	app.Logger, err = logging.New(logCfg)
	if err != nil {
		// Fall back to stderr so a bad log setting is still visible.
		app.Logger, _ = logging.New(logging.DefaultConfig())
		app.Logger.Warn().Err(err).Msg("invalid log configuration, logging to stderr")
	}

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(cfg.EventsPath)
	if err != nil {
		// Non-fatal: run without events if the log can't be created.
		app.Logger.Warn().Err(err).Str("path", cfg.EventsPath).Msg("event log disabled")
		app.EventLog = nil
	}
	if app.EventLog != nil {
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, observability.AlertThresholdsFromConfig(cfg.Alerts))
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	app.Notifier = observability.NewNotifier(cfg.Notifications.SlackWebhookURL)

	// --- Image cache ---
	app.Images, err = imagecache.Open(cfg.Images, imagecache.WithLogger(app.Logger))
	if err != nil {
		app.Logger.Warn().Err(err).Str("dir", cfg.Images.CacheDir).Msg("image cache disabled")
		app.Images = nil
	}

	// --- Task store and engine ---
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		app.InitErr = err
	} else {
		app.Store, err = newTaskStore(cfg, app.Logger)
		if err != nil {
			app.InitErr = err
		}
	}
	if app.Store != nil {
		opts := []core.EngineOption{core.WithLogger(app.Logger)}
		if app.EventLog != nil {
			opts = append(opts, core.WithEventLogger(observability.NewRecorder(app.EventLog)))
		}
		app.Engine = core.NewEngine(app.Store, opts...)
	}

	// --- Wire CLI package-level variables ---
	cli.Config = app.Config
	cli.Logger = app.Logger
	cli.InitErr = app.InitErr
	if app.Store != nil {
		cli.Store = app.Store
		cli.Engine = app.Engine
	}
	cli.Images = app.Images

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// newTaskStore builds the TaskStore for the configured backend.
func newTaskStore(cfg *models.Config, log *logging.Logger) (core.TaskStore, error) {
	switch cfg.Backend {
	case models.BackendFile:
		return storage.NewFileTaskStore(cfg.FileStore.Path), nil
	case models.BackendNotion:
		client, err := notion.New(cfg.Notion,
			notion.WithRetryPolicy(core.RetryPolicyFromConfig(cfg.Retry)),
			notion.WithLogger(log),
		)
		if err != nil {
			return nil, fmt.Errorf("creating notion client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", core.ErrConfiguration, cfg.Backend)
	}
}

// Close releases resources held by the App: the image index, the event log
// file and the log file. It is safe to call on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.Images != nil {
		errs = append(errs, a.Images.Close())
	}
	if a.EventLog != nil {
		errs = append(errs, a.EventLog.Close())
	}
	if a.Logger != nil {
		errs = append(errs, a.Logger.Close())
	}
	return errors.Join(errs...)
}

// ResolveBasePath determines the directory taskflow reads its configuration
// from. It checks the TASKFLOW_HOME env var, then walks up from the current
// directory looking for .taskflow.yaml or .env, then falls back to the
// current directory.
func ResolveBasePath() string {
	if home := os.Getenv("TASKFLOW_HOME"); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		for _, name := range []string{".taskflow.yaml", ".env"} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}
