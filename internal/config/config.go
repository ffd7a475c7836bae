package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"clydepm/internal/clyerr"
)

// ProjectConfigFile is the project-local config file name, relative to
// the invocation's working directory.
const ProjectConfigFile = ".clydepm.yml"

// EnvPrefix is the prefix viper requires on every environment variable
// this package reads, e.g. CLYDEPM_WORKERS.
const EnvPrefix = "CLYDEPM"

// RunConfig is the fully resolved, immutable configuration for one
// invocation. Every field is already an absolute path or a concrete
// value; nothing downstream needs to consult the environment or the
// process working directory again.
type RunConfig struct {
	WorkDir       string
	CacheDir      string
	StoreDir      string
	Workers       int
	LogLevel      string
	ManifestNames []string
}

// Overrides carries explicit flag values from the CLI layer. A nil
// pointer field means "flag not set", so it never shadows a lower
// layer (environment, project file, or default).
type Overrides struct {
	CacheDir      *string
	StoreDir      *string
	Workers       *int
	LogLevel      *string
	ManifestNames []string
}

// DefaultManifestNames is the search order manifest.Parse's callers use
// when no manifest name is forced by configuration.
var DefaultManifestNames = []string{"package.yml", "config.yaml"}

func defaults(workDir string) map[string]any {
	return map[string]any{
		"cache_dir":      filepath.Join(workDir, ".clydepm", "cache"),
		"store_dir":      filepath.Join(workDir, ".clydepm", "store"),
		"workers":        4,
		"log_level":      "info",
		"manifest_names": DefaultManifestNames,
	}
}

// Load resolves a RunConfig for workDir, layering in order of
// increasing precedence: built-in defaults, a .clydepm.yml file found
// in workDir, the CLYDEPM_-prefixed environment, and finally over.
//
// workDir must be absolute; it anchors every relative path resolved
// below it, the same rule the teacher's ParseInvocation enforced for
// WorkDir.
func Load(workDir string, over Overrides) (*RunConfig, error) {
	if workDir == "" {
		return nil, &clyerr.ConfigError{Field: "workdir", Msg: "working directory is required"}
	}
	if !filepath.IsAbs(workDir) {
		return nil, &clyerr.ConfigError{Field: "workdir", Msg: fmt.Sprintf("must be an absolute path (got %q)", workDir)}
	}

	v := viper.New()
	for key, val := range defaults(workDir) {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	projectFile := filepath.Join(workDir, ProjectConfigFile)
	if fileExists(projectFile) {
		v.SetConfigFile(projectFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, &clyerr.ConfigError{Field: ProjectConfigFile, Msg: "failed to parse project config", Err: err}
		}
	}

	// Flags take precedence over everything below them; Set() on a
	// viper instance outranks env, file and defaults.
	if over.CacheDir != nil {
		v.Set("cache_dir", *over.CacheDir)
	}
	if over.StoreDir != nil {
		v.Set("store_dir", *over.StoreDir)
	}
	if over.Workers != nil {
		v.Set("workers", *over.Workers)
	}
	if over.LogLevel != nil {
		v.Set("log_level", *over.LogLevel)
	}
	if len(over.ManifestNames) > 0 {
		v.Set("manifest_names", over.ManifestNames)
	}

	cfg := &RunConfig{
		WorkDir:       workDir,
		CacheDir:      resolveUnder(workDir, v.GetString("cache_dir")),
		StoreDir:      resolveUnder(workDir, v.GetString("store_dir")),
		Workers:       v.GetInt("workers"),
		LogLevel:      strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		ManifestNames: v.GetStringSlice("manifest_names"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *RunConfig) error {
	if cfg.Workers <= 0 {
		return &clyerr.ConfigError{Field: "workers", Msg: fmt.Sprintf("must be a positive integer (got %d)", cfg.Workers)}
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &clyerr.ConfigError{Field: "log_level", Msg: fmt.Sprintf("must be one of debug|info|warn|error (got %q)", cfg.LogLevel)}
	}
	if len(cfg.ManifestNames) == 0 {
		return &clyerr.ConfigError{Field: "manifest_names", Msg: "must not be empty"}
	}
	return nil
}

func resolveUnder(workDir, p string) string {
	if p == "" {
		return p
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(workDir, p))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
