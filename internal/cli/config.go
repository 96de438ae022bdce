package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	// Root is the journal directory holding the year folders. Relative
	// paths resolve against the working directory.
	Root string `json:"root"`

	// DebounceMS is the quiet period for watch mode, in milliseconds.
	DebounceMS int `json:"debounce_ms,omitempty"`

	// AutoSyncMinutes gates how often a focus event may trigger a
	// drift check. Zero means every focus checks.
	AutoSyncMinutes int `json:"auto_sync_minutes,omitempty"`

	// Verbose enables debug logging.
	Verbose bool `json:"verbose,omitempty"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".memorylane.json"

const defaultDebounceMS = 500

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errRootEmpty          = errors.New("root must not be empty")
)

// DefaultConfig returns the default configuration: the working
// directory itself is the journal root.
func DefaultConfig() Config {
	return Config{
		Root:       ".",
		DebounceMS: defaultDebounceMS,
	}
}

// globalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/memorylane/config.json if set, otherwise
// ~/.config/memorylane/config.json. Empty when no home directory can be
// determined.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "memorylane", "config.json")
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "memorylane", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "memorylane", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest
// wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/memorylane/config.json)
// 3. Project config (.memorylane.json in the working directory)
// 4. Explicit config file via configPath (if non-empty)
// 5. CLI overrides.
func LoadConfig(workDir, configPath string, overrides Config, hasRootOverride bool, env map[string]string) (Config, ConfigSources, error) {
	cfg := DefaultConfig()

	var sources ConfigSources

	globalCfg, globalPath, err := loadConfigFile(globalConfigPath(env), false)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if hasRootOverride {
		cfg.Root = overrides.Root
	}

	if overrides.Verbose {
		cfg.Verbose = true
	}

	if strings.TrimSpace(cfg.Root) == "" {
		return Config{}, ConfigSources{}, errRootEmpty
	}

	return cfg, sources, nil
}

// loadProjectConfig loads .memorylane.json from workDir, or the
// explicit config file when configPath is set. Explicit files must
// exist; the default project file is optional.
func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	if configPath != "" {
		cfgFile := configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		if _, err := os.Stat(cfgFile); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}

		return loadConfigFile(cfgFile, true)
	}

	return loadConfigFile(filepath.Join(workDir, ConfigFileName), false)
}

// loadConfigFile loads one config file. Missing optional files return a
// zero config with an empty path.
func loadConfigFile(path string, mustExist bool) (Config, string, error) {
	if path == "" {
		return Config{}, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, "", nil
		}

		if mustExist {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileRead, path)
		}

		return Config{}, "", nil
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, path, nil
}

// parseConfig accepts JSONC: the file is user-edited, so comments and
// trailing commas are tolerated.
func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Root != "" {
		base.Root = overlay.Root
	}

	if overlay.DebounceMS > 0 {
		base.DebounceMS = overlay.DebounceMS
	}

	if overlay.AutoSyncMinutes > 0 {
		base.AutoSyncMinutes = overlay.AutoSyncMinutes
	}

	if overlay.Verbose {
		base.Verbose = true
	}

	return base
}
