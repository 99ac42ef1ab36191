package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/internal/storage"
)

const sampleTasksYAML = `version: "1.0"
tasks:
  t-high:
    title: Rate limit login
    status: Ready
    priority: High
    description: Throttle failures.
    tags: [code, Think like Security Engineer, critique]
  t-low:
    title: Tidy README
    status: Ready
    priority: Low
    tags: [rewrite, deploy]
  t-none:
    title: Untagged
    status: In Progress
    priority: Medium
`

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// withFileStore points the CLI at a file store seeded with sampleTasksYAML
// and restores the previous services when the test ends.
func withFileStore(t *testing.T) *storage.FileTaskStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	if err := os.WriteFile(path, []byte(sampleTasksYAML), 0o600); err != nil {
		t.Fatalf("writing tasks: %v", err)
	}
	store := storage.NewFileTaskStore(path)

	origStore, origEngine, origInit := Store, Engine, InitErr
	t.Cleanup(func() {
		Store, Engine, InitErr = origStore, origEngine, origInit
	})

	Store = store
	Engine = core.NewEngine(store,
		core.WithClock(func() time.Time { return fixedNow }),
		core.WithRunIDs(func() string { return "run-1" }),
	)
	InitErr = nil
	return store
}

// withoutStore clears the task store as NewApp does for an invalid config.
func withoutStore(t *testing.T, initErr error) {
	t.Helper()
	origStore, origEngine, origInit := Store, Engine, InitErr
	t.Cleanup(func() {
		Store, Engine, InitErr = origStore, origEngine, origInit
	})
	Store, Engine, InitErr = nil, nil, initErr
}

// runCommand runs cmd's RunE with its output captured.
func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := cmd.RunE(cmd, args)
	return out.String(), err
}
