package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "APKDEPLOY_"

// envBindings maps variable names (without prefix) to config fields
func envBindings(cfg *Config) map[string]*string {
	return map[string]*string{
		"HOST":         &cfg.Target.Host,
		"PORT":         &cfg.Target.Port,
		"USER":         &cfg.Target.User,
		"PASSWORD":     &cfg.Target.Password,
		"KEY":          &cfg.Target.Key,
		"KNOWN_HOSTS":  &cfg.Target.KnownHosts,
		"HOST_KEY":     &cfg.Target.HostKey,
		"TIMEOUT":      &cfg.Target.Timeout,
		"APP_DIR":      &cfg.App.Dir,
		"APK":          &cfg.App.APK,
		"PUBLIC_PATH":  &cfg.App.PublicPath,
		"STAGING_PATH": &cfg.App.StagingPath,
	}
}

// ApplyEnv loads .env.local and .env from dir (existing variables win),
// then overrides config fields from APKDEPLOY_* variables.
// Missing files are skipped; unreadable or malformed ones are errors.
func ApplyEnv(cfg *Config, dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}

	for name, field := range envBindings(cfg) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*field = v
		}
	}
	return nil
}
