// Package release describes the application-version record that is
// upserted on the server after an APK is published.
package release

import (
	"fmt"
	"os"
	"regexp"
	"time"
)

const (
	DefaultPlatform = "android"
	DefaultClientID = "all"

	// TimestampLayout is the format Laravel stores released_at in.
	TimestampLayout = "2006-01-02 15:04:05"
)

var versionRe = regexp.MustCompile(`^\d+\.\d+\.\d+([-+][0-9A-Za-z.-]+)?$`)

// Release is one row of the app_versions table, keyed on Platform + ClientID.
type Release struct {
	Platform    string `yaml:"platform"`
	ClientID    string `yaml:"client_id"`
	Version     string `yaml:"version"`
	Build       int    `yaml:"build"`
	DownloadURL string `yaml:"download_url"`
	Changelog   string `yaml:"changelog"`
	FileSize    int64  `yaml:"file_size"`
	Active      *bool  `yaml:"active"`
	ForceUpdate bool   `yaml:"force_update"`
	ReleasedAt  string `yaml:"released_at"` // empty means now() on the server
	Pubspec     string `yaml:"pubspec"`     // optional pubspec.yaml to read version/build from
}

// IsActive defaults to true when unset.
func (r Release) IsActive() bool {
	return r.Active == nil || *r.Active
}

// WithDefaults fills platform and client id.
func (r Release) WithDefaults() Release {
	if r.Platform == "" {
		r.Platform = DefaultPlatform
	}
	if r.ClientID == "" {
		r.ClientID = DefaultClientID
	}
	return r
}

// Validate checks the fields the upsert needs.
func (r Release) Validate() error {
	if r.Platform == "" {
		return fmt.Errorf("release platform is required")
	}
	if r.ClientID == "" {
		return fmt.Errorf("release client_id is required")
	}
	if !versionRe.MatchString(r.Version) {
		return fmt.Errorf("release version %q is not MAJOR.MINOR.PATCH", r.Version)
	}
	if r.Build <= 0 {
		return fmt.Errorf("release build must be greater than 0, got %d", r.Build)
	}
	if r.DownloadURL == "" {
		return fmt.Errorf("release download_url is required")
	}
	if r.FileSize < 0 {
		return fmt.Errorf("release file_size cannot be negative")
	}
	if r.ReleasedAt != "" {
		if _, err := ParseTimestamp(r.ReleasedAt); err != nil {
			return fmt.Errorf("release released_at: %w", err)
		}
	}
	return nil
}

// ParseTimestamp accepts "2006-01-02 15:04:05" or RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither %q nor RFC 3339", s, TimestampLayout)
	}
	return t, nil
}

// Timestamp renders ReleasedAt in the database layout, in UTC, or "" when unset.
func (r Release) Timestamp() string {
	if r.ReleasedAt == "" {
		return ""
	}
	t, err := ParseTimestamp(r.ReleasedAt)
	if err != nil {
		return r.ReleasedAt
	}
	return t.UTC().Format(TimestampLayout)
}

// Resolve fills version/build from the pubspec and file size from the APK
// when they are not set explicitly.
func (r Release) Resolve(apkPath string) (Release, error) {
	r = r.WithDefaults()

	if r.Pubspec != "" && (r.Version == "" || r.Build == 0) {
		data, err := os.ReadFile(r.Pubspec)
		if err != nil {
			return r, fmt.Errorf("read pubspec: %w", err)
		}
		version, build, err := ParsePubspec(data)
		if err != nil {
			return r, err
		}
		if r.Version == "" {
			r.Version = version
		}
		if r.Build == 0 {
			r.Build = build
		}
	}

	if r.FileSize == 0 && apkPath != "" {
		info, err := os.Stat(apkPath)
		if err != nil {
			return r, fmt.Errorf("stat apk: %w", err)
		}
		r.FileSize = info.Size()
	}
	return r, nil
}
