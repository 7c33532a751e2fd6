package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	// File is the path of the state file commands operate on.
	File string `json:"file"`
	// LogLevel is one of "debug", "info", "warn", "error". Empty disables
	// logging.
	LogLevel string `json:"log_level,omitempty"`
	// Lock guards mutating commands with an advisory file lock, for setups
	// where several processes share the state file.
	Lock bool `json:"lock,omitempty"`
}

// ConfigFileName is the default config file name.
const ConfigFileName = ".statefile.json"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigInvalid      = errors.New("invalid config file")
	errFileRequired       = errors.New("no state file configured (set \"file\" in " + ConfigFileName + " or pass --file)")
)

// LoadConfigInput bundles the inputs to [LoadConfig].
type LoadConfigInput struct {
	// WorkDir is the directory the project config is looked up in.
	WorkDir string
	// ConfigPath is an explicit config file; it must exist when set.
	ConfigPath string
	// FileOverride overrides the state file path from the command line.
	FileOverride string
	// Env is the process environment as a map.
	Env map[string]string
}

// LoadConfig loads configuration with the following precedence (highest
// wins): global user config, project config (or explicit --config file),
// CLI overrides.
//
// Config files are JSONC (JSON with comments and trailing commas), parsed
// via hujson.
func LoadConfig(in LoadConfigInput) (Config, error) {
	var cfg Config

	globalPath := globalConfigPath(in.Env)
	if globalPath != "" {
		globalCfg, _, err := loadConfigFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		cfg = mergeConfig(cfg, globalCfg)
	}

	projectPath := filepath.Join(in.WorkDir, ConfigFileName)
	mustExist := false

	if in.ConfigPath != "" {
		projectPath = in.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(in.WorkDir, projectPath)
		}

		mustExist = true
	}

	projectCfg, _, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	cfg = mergeConfig(cfg, projectCfg)

	if in.FileOverride != "" {
		cfg.File = in.FileOverride
	}

	if cfg.File == "" {
		return Config{}, errFileRequired
	}

	if !filepath.IsAbs(cfg.File) {
		cfg.File = filepath.Join(in.WorkDir, cfg.File)
	}

	return cfg, nil
}

// globalConfigPath returns the path of the global config file:
// $XDG_CONFIG_HOME/statefile/config.json, falling back to
// ~/.config/statefile/config.json. Empty when no home is known.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "statefile", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "statefile", "config.json")
}

// loadConfigFile loads a config file. If mustExist is false, missing files
// return a zero config. Returns the config, whether the file was loaded,
// and any error.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
		}

		return Config{}, false, nil
	}

	cfg, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, parseErr)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON.
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.File != "" {
		base.File = overlay.File
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	if overlay.Lock {
		base.Lock = true
	}

	return base
}
