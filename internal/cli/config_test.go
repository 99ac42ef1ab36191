package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

func withConfig(t *testing.T, cfg *models.Config) {
	t.Helper()
	orig := Config
	t.Cleanup(func() { Config = orig })
	Config = cfg
}

func TestConfigShow_HidesToken(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Notion.Token = "secret_abc123"
	cfg.Notion.DatabaseID = "db-1"
	withConfig(t, cfg)

	out, err := runCommand(t, configShowCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "secret_abc123") {
		t.Fatalf("token leaked:\n%s", out)
	}
	for _, want := range []string{"database_id: db-1", "backend: notion", "tags: MCP", "# notion token: set"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigShow_NotLoaded(t *testing.T) {
	withConfig(t, nil)
	if _, err := runCommand(t, configShowCmd); err == nil {
		t.Fatal("expected error when configuration is not loaded")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := core.DefaultConfig()
	withConfig(t, cfg)

	_, err := runCommand(t, configValidateCmd)
	if !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "NOTION_TOKEN") || !strings.Contains(err.Error(), "NOTION_DATABASE_ID") {
		t.Errorf("expected every problem to be reported: %v", err)
	}

	cfg.Notion.Token = "t"
	cfg.Notion.DatabaseID = "d"
	out, err := runCommand(t, configValidateCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Configuration is valid.") {
		t.Errorf("unexpected output: %q", out)
	}
}
