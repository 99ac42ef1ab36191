package cli

import (
	"fmt"

	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/internal/imagecache"
	"github.com/valter-silva-au/taskflow/internal/logging"
	"github.com/valter-silva-au/taskflow/internal/mcp"
	"github.com/valter-silva-au/taskflow/internal/observability"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	Config *models.Config
	Logger *logging.Logger

	// InitErr is the configuration problem that kept Store and Engine from
	// being built. Commands that need them report it.
	InitErr error

	Store  core.TaskStore
	Engine mcp.BatchProcessor
	Images *imagecache.Cache
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

// requireStore returns an error explaining why the task store is unavailable.
func requireStore() error {
	if Store != nil && Engine != nil {
		return nil
	}
	if InitErr != nil {
		return fmt.Errorf("task store not initialized: %w", InitErr)
	}
	return fmt.Errorf("task store not initialized")
}
