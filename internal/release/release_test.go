package release

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRelease() Release {
	return Release{
		Platform:    "android",
		ClientID:    "all",
		Version:     "2.6.0",
		Build:       19,
		DownloadURL: "/systems/winconnect_mobile.apk",
		Changelog:   "Correções",
	}
}

func TestRelease_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Release)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *Release) {}},
		{name: "prerelease suffix", mutate: func(r *Release) { r.Version = "2.6.0-beta.1" }},
		{name: "db timestamp", mutate: func(r *Release) { r.ReleasedAt = "2026-10-16 09:30:00" }},
		{name: "rfc3339 timestamp", mutate: func(r *Release) { r.ReleasedAt = "2026-10-16T09:30:00Z" }},
		{name: "missing platform", mutate: func(r *Release) { r.Platform = "" }, wantErr: true},
		{name: "missing client", mutate: func(r *Release) { r.ClientID = "" }, wantErr: true},
		{name: "two part version", mutate: func(r *Release) { r.Version = "2.6" }, wantErr: true},
		{name: "zero build", mutate: func(r *Release) { r.Build = 0 }, wantErr: true},
		{name: "no download url", mutate: func(r *Release) { r.DownloadURL = "" }, wantErr: true},
		{name: "negative size", mutate: func(r *Release) { r.FileSize = -1 }, wantErr: true},
		{name: "bad timestamp", mutate: func(r *Release) { r.ReleasedAt = "yesterday" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRelease()
			tt.mutate(&r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRelease_Defaults(t *testing.T) {
	r := Release{}.WithDefaults()
	assert.Equal(t, "android", r.Platform)
	assert.Equal(t, "all", r.ClientID)
	assert.True(t, r.IsActive())

	inactive := false
	r.Active = &inactive
	assert.False(t, r.IsActive())
}

func TestRelease_Timestamp(t *testing.T) {
	assert.Equal(t, "", Release{}.Timestamp())
	assert.Equal(t, "2026-10-16 09:30:00", Release{ReleasedAt: "2026-10-16T09:30:00Z"}.Timestamp())
	assert.Equal(t, "2026-10-16 07:30:00", Release{ReleasedAt: "2026-10-16T09:30:00+02:00"}.Timestamp())
	assert.Equal(t, "2026-10-16 09:30:00", Release{ReleasedAt: "2026-10-16 09:30:00"}.Timestamp(), "db layout has no zone and stays as is")
}

func TestParsePubspec(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantVer   string
		wantBuild int
		wantErr   bool
	}{
		{name: "flutter version", yaml: "name: winconnect_mobile\nversion: 2.6.0+19\n", wantVer: "2.6.0", wantBuild: 19},
		{name: "no build", yaml: "version: 2.6.0\n", wantErr: true},
		{name: "bad build", yaml: "version: 2.6.0+abc\n", wantErr: true},
		{name: "missing version", yaml: "name: app\n", wantErr: true},
		{name: "broken yaml", yaml: "version: [\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ver, build, err := ParsePubspec([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVer, ver)
			assert.Equal(t, tt.wantBuild, build)
		})
	}
}

func TestRelease_Resolve(t *testing.T) {
	dir := t.TempDir()
	pubspec := filepath.Join(dir, "pubspec.yaml")
	apk := filepath.Join(dir, "app-release.apk")
	require.NoError(t, os.WriteFile(pubspec, []byte("version: 2.6.0+19\n"), 0644))
	require.NoError(t, os.WriteFile(apk, make([]byte, 1234), 0644))

	r, err := Release{Pubspec: pubspec, DownloadURL: "/x.apk"}.Resolve(apk)
	require.NoError(t, err)
	assert.Equal(t, "2.6.0", r.Version)
	assert.Equal(t, 19, r.Build)
	assert.EqualValues(t, 1234, r.FileSize)
	assert.Equal(t, "android", r.Platform)
	assert.NoError(t, r.Validate())

	// explicit values win over the pubspec
	r, err = Release{Pubspec: pubspec, Version: "3.0.0", Build: 30, FileSize: 7}.Resolve(apk)
	require.NoError(t, err)
	assert.Equal(t, "3.0.0", r.Version)
	assert.Equal(t, 30, r.Build)
	assert.EqualValues(t, 7, r.FileSize)

	_, err = Release{}.Resolve(filepath.Join(dir, "missing.apk"))
	assert.Error(t, err)
}
