package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// hermeticEnv points XDG_CONFIG_HOME at an empty directory so a real
// user config cannot leak into tests.
func hermeticEnv(t *testing.T) map[string]string {
	t.Helper()

	return map[string]string{"XDG_CONFIG_HOME": t.TempDir()}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, sources, err := LoadConfig(t.TempDir(), "", Config{}, false, hermeticEnv(t))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Root != "." {
		t.Errorf("Root = %q, want %q", cfg.Root, ".")
	}

	if cfg.DebounceMS != defaultDebounceMS {
		t.Errorf("DebounceMS = %d, want %d", cfg.DebounceMS, defaultDebounceMS)
	}

	if sources.Project != "" {
		t.Errorf("unexpected project config source %q", sources.Project)
	}
}

func TestLoadConfigProjectFileWithComments(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	content := `{
  // journal lives next to this file
  "root": "journal",
  "debounce_ms": 250,
}`

	path := filepath.Join(workDir, ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, sources, err := LoadConfig(workDir, "", Config{}, false, hermeticEnv(t))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Root != "journal" {
		t.Errorf("Root = %q, want journal", cfg.Root)
	}

	if cfg.DebounceMS != 250 {
		t.Errorf("DebounceMS = %d, want 250", cfg.DebounceMS)
	}

	if sources.Project != path {
		t.Errorf("Project source = %q, want %q", sources.Project, path)
	}
}

func TestLoadConfigGlobalThenProjectPrecedence(t *testing.T) {
	t.Parallel()

	xdg := t.TempDir()
	workDir := t.TempDir()

	globalDir := filepath.Join(xdg, "memorylane")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		t.Fatal(err)
	}

	globalCfg := `{"root": "global-journal", "auto_sync_minutes": 10}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	projectCfg := `{"root": "project-journal"}`
	if err := os.WriteFile(filepath.Join(workDir, ConfigFileName), []byte(projectCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{"XDG_CONFIG_HOME": xdg}

	cfg, _, err := LoadConfig(workDir, "", Config{}, false, env)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	// Project wins for root; the global-only field survives the merge.
	if cfg.Root != "project-journal" {
		t.Errorf("Root = %q, want project-journal", cfg.Root)
	}

	if cfg.AutoSyncMinutes != 10 {
		t.Errorf("AutoSyncMinutes = %d, want 10", cfg.AutoSyncMinutes)
	}
}

func TestLoadConfigCLIOverrideWins(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	projectCfg := `{"root": "project-journal"}`
	if err := os.WriteFile(filepath.Join(workDir, ConfigFileName), []byte(projectCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadConfig(workDir, "", Config{Root: "flag-journal"}, true, hermeticEnv(t))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Root != "flag-journal" {
		t.Errorf("Root = %q, want flag-journal", cfg.Root)
	}
}

func TestLoadConfigExplicitFileMustExist(t *testing.T) {
	t.Parallel()

	_, _, err := LoadConfig(t.TempDir(), "nope.json", Config{}, false, hermeticEnv(t))
	if !errors.Is(err, errConfigFileNotFound) {
		t.Errorf("err = %v, want errConfigFileNotFound", err)
	}
}

func TestLoadConfigRejectsEmptyRoot(t *testing.T) {
	t.Parallel()

	_, _, err := LoadConfig(t.TempDir(), "", Config{Root: "  "}, true, hermeticEnv(t))
	if !errors.Is(err, errRootEmpty) {
		t.Errorf("err = %v, want errRootEmpty", err)
	}
}

func TestParseConfigRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := parseConfig([]byte("{not json")); err == nil {
		t.Error("garbage config parsed without error")
	}
}
