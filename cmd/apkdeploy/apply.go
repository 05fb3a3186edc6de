package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"apkdeploy/internal/builder"
	"apkdeploy/internal/config"
	"apkdeploy/internal/deployer"
	"apkdeploy/internal/release"
	"apkdeploy/pkg/sshutil"
)

// DefaultConfigPath is used when --config is not given and the file exists
const DefaultConfigPath = "apkdeploy.yaml"

// GlobalOptions holds the persistent flags shared by every command
type GlobalOptions struct {
	ConfigPath  string
	EnvDir      string
	Host        string
	Port        string
	User        string
	AskPassword bool
	DryRun      bool
	Verbose     bool
}

// ReleaseOptions overrides the release section of the config from flags
type ReleaseOptions struct {
	APK         string
	Build       bool // Run `flutter build apk --release` first
	Version     string
	BuildNumber int
	Changelog   string
	Force       bool
}

// loadConfig reads the config file, .env files and flag overrides
func loadConfig(g GlobalOptions) (*config.Config, error) {
	path := g.ConfigPath
	if path == "" {
		if _, err := os.Stat(DefaultConfigPath); err == nil {
			path = DefaultConfigPath
		}
	}

	slog.Debug("Loading config...", "path", path, "env_dir", g.EnvDir)
	cfg, err := config.Load(path, g.EnvDir)
	if err != nil {
		return nil, err
	}

	if g.Host != "" {
		cfg.Target.Host = g.Host
	}
	if g.Port != "" {
		cfg.Target.Port = g.Port
	}
	if g.User != "" {
		cfg.Target.User = g.User
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// sshTarget builds the connection target, prompting for a password when asked
func sshTarget(cfg *config.Config, g GlobalOptions) (sshutil.Target, error) {
	t, err := cfg.SSHTarget()
	if err != nil {
		return t, err
	}
	if !g.AskPassword || t.Password != "" || g.DryRun {
		return t, nil
	}
	if !sshutil.CanPrompt() {
		return t, fmt.Errorf("--ask-password needs an interactive terminal; set %sPASSWORD instead", config.EnvPrefix)
	}

	shown := t.Resolve(sshutil.DefaultSSHConfigPath())
	pw, err := sshutil.PromptPassword(os.Stderr, shown)
	if err != nil {
		return t, err
	}
	t.Password = pw
	return t, nil
}

// resolveRelease returns the APK to upload and the release metadata for it.
// Flags win over the config file, which wins over pubspec.yaml.
func resolveRelease(cfg *config.Config, ro ReleaseOptions, needAPK, dryRun bool) (string, release.Release, error) {
	rel := cfg.Release
	rel.DownloadURL = cfg.DownloadURL()
	if ro.Version != "" {
		rel.Version = ro.Version
	}
	if ro.BuildNumber > 0 {
		rel.Build = ro.BuildNumber
	}
	if ro.Changelog != "" {
		rel.Changelog = ro.Changelog
	}
	if ro.Force {
		rel.ForceUpdate = true
	}

	project := cfg.App.Project
	if project == "" {
		project = "."
	}
	if rel.Pubspec == "" {
		if p := filepath.Join(project, "pubspec.yaml"); fileExists(p) {
			rel.Pubspec = p
		}
	}

	apk := ro.APK
	if apk == "" {
		apk = cfg.App.APK
	}

	if ro.Build && dryRun {
		fmt.Printf("   [DRY-RUN] Would run: %s\n", builder.BuildCommand(project, builder.VersionArgs(rel.Version, rel.Build)...).String())
		apk = builder.OutputPath(project)
	} else if ro.Build {
		out, err := builder.BuildAPK(project, builder.VersionArgs(rel.Version, rel.Build)...)
		if err != nil {
			return "", rel, err
		}
		apk = out
	}

	sizeFrom := apk
	if !needAPK && !fileExists(apk) {
		sizeFrom = ""
	}
	rel, err := rel.Resolve(sizeFrom)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && sizeFrom != "" {
			return "", rel, &sshutil.TransferError{Local: apk, Remote: cfg.App.PublicPath, Err: err}
		}
		return "", rel, err
	}

	slog.Debug("Resolved release", "version", rel.Version, "build", rel.Build, "size", rel.FileSize, "apk", apk)
	return apk, rel, nil
}

// runPlan connects and executes the plan with the real SSH connector
func runPlan(g GlobalOptions, cfg *config.Config, plan deployer.Plan) error {
	target, err := sshTarget(cfg, g)
	if err != nil {
		return err
	}
	d := deployer.NewDeployer(nil)
	return d.Run(target, plan, deployer.Options{DryRun: g.DryRun})
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
