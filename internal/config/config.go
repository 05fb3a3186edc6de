package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"apkdeploy/internal/release"
	"apkdeploy/internal/templates"
	"apkdeploy/pkg/sshutil"
)

// Config represents the top-level structure of apkdeploy.yaml
type Config struct {
	Target  TargetConfig            `yaml:"target"`
	App     AppConfig               `yaml:"app"`
	Release release.Release         `yaml:"release"`
	Flows   map[string][]StepConfig `yaml:"flows"` // Custom step lists, run with `apkdeploy run <name>`
}

// TargetConfig defines the SSH endpoint. The password is never read from YAML.
type TargetConfig struct {
	Host       string `yaml:"host"`        // SSH Alias or Hostname
	Port       string `yaml:"port"`        // Default from ~/.ssh/config, then 22
	User       string `yaml:"user"`        // Default from ~/.ssh/config or $USER
	Key        string `yaml:"key"`         // Private key path
	KnownHosts string `yaml:"known_hosts"` // Default ~/.ssh/known_hosts
	HostKey    string `yaml:"host_key"`    // Pinned fingerprint (SHA256:...)
	Timeout    string `yaml:"timeout"`     // e.g. "30s"
	Password   string `yaml:"-"`
}

// AppConfig describes where the artifact lives locally and on the server
type AppConfig struct {
	Dir         string `yaml:"dir"`          // Laravel root, where artisan lives
	APK         string `yaml:"apk"`          // Local artifact
	Project     string `yaml:"project"`      // Flutter project dir for --build
	PublicPath  string `yaml:"public_path"`  // Web-served destination
	StagingPath string `yaml:"staging_path"` // Upload target for the stage flow
	Mode        string `yaml:"mode"`         // chmod mode, default 644
	Model       string `yaml:"model"`        // Eloquent model, default App\Models\AppVersion
	Sudo        bool   `yaml:"sudo"`         // Use sudo for chmod in the publish flow
}

// StepConfig is one entry of a custom flow: exactly one of Upload or Run
type StepConfig struct {
	Name   string        `yaml:"name"`
	Upload *UploadConfig `yaml:"upload"`
	Run    string        `yaml:"run"` // Rendered with templates.Vars
}

// UploadConfig defines a single file transfer
type UploadConfig struct {
	Local  string `yaml:"local"`
	Remote string `yaml:"remote"`
	Verify bool   `yaml:"verify"`
}

// Default returns a Config with the built-in defaults
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			Timeout: sshutil.DefaultTimeout.String(),
		},
		App: AppConfig{
			APK:   "build/app/outputs/flutter-apk/app-release.apk",
			Mode:  "644",
			Model: templates.DefaultModel,
		},
	}
}

// ParseConfig parses YAML content over the defaults into a Config struct
func ParseConfig(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load reads the config file (optional), then applies .env files and
// APKDEPLOY_* environment variables from envDir.
func Load(path, envDir string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %v", err)
		}
	}

	if err := ApplyEnv(cfg, envDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.Target.Host == "" {
		return fmt.Errorf("target host is required (config target.host or %sHOST)", EnvPrefix)
	}
	if c.Target.Timeout != "" {
		if _, err := time.ParseDuration(c.Target.Timeout); err != nil {
			return fmt.Errorf("target invalid timeout: %v", err)
		}
	}

	vars := templates.Vars{Mode: c.App.Mode, Model: c.App.Model}
	if err := vars.Validate(); err != nil {
		return fmt.Errorf("app: %v", err)
	}

	for name, steps := range c.Flows {
		if len(steps) == 0 {
			return fmt.Errorf("flow %s has no steps defined", name)
		}
		for i, s := range steps {
			hasUpload := s.Upload != nil
			hasRun := s.Run != ""
			if hasUpload == hasRun {
				return fmt.Errorf("flow %s step #%d must define exactly one of upload or run", name, i)
			}
			if hasUpload {
				if s.Upload.Local == "" {
					return fmt.Errorf("flow %s step #%d missing local path", name, i)
				}
				if s.Upload.Remote == "" {
					return fmt.Errorf("flow %s step #%d missing remote path", name, i)
				}
			}
		}
	}
	return nil
}

// SSHTarget converts the target section into an sshutil.Target
func (c *Config) SSHTarget() (sshutil.Target, error) {
	t := sshutil.Target{
		Host:           c.Target.Host,
		Port:           c.Target.Port,
		User:           c.Target.User,
		Password:       c.Target.Password,
		KeyPath:        c.Target.Key,
		KnownHostsFile: c.Target.KnownHosts,
		HostKey:        c.Target.HostKey,
	}
	if c.Target.Timeout != "" {
		d, err := time.ParseDuration(c.Target.Timeout)
		if err != nil {
			return t, fmt.Errorf("target invalid timeout: %v", err)
		}
		t.Timeout = d
	}
	return t, nil
}

// TemplateVars builds the template variables for a release
func (c *Config) TemplateVars(rel release.Release) templates.Vars {
	return templates.Vars{
		AppDir:      c.App.Dir,
		PublicPath:  c.App.PublicPath,
		StagingPath: c.App.StagingPath,
		Mode:        c.App.Mode,
		Model:       c.App.Model,
		Sudo:        c.App.Sudo,
		Release:     rel,
	}
}

// DownloadURL returns release.download_url, or the web path of the public
// APK when it sits under a Laravel "public/" directory.
func (c *Config) DownloadURL() string {
	if c.Release.DownloadURL != "" {
		return c.Release.DownloadURL
	}
	if i := strings.LastIndex(c.App.PublicPath, "/public/"); i >= 0 {
		return c.App.PublicPath[i+len("/public"):]
	}
	return ""
}
