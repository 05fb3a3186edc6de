package discover

import (
	"errors"
	"strings"
	"testing"

	"apkdeploy/pkg/sshutil"
)

func TestParseServerInfo(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantHost    string
		wantArch    string
		wantPHP     string
		wantArtisan bool
		wantErr     bool
	}{
		{
			name:        "Normal case",
			input:       "web01|x86_64|8.2.12|yes",
			wantHost:    "web01",
			wantArch:    "x86_64",
			wantPHP:     "8.2.12",
			wantArtisan: true,
		},
		{
			name:     "With newline, no php",
			input:    "pi|aarch64|none|no\n",
			wantHost: "pi",
			wantArch: "aarch64",
			wantPHP:  "none",
		},
		{
			name:    "Missing fields",
			input:   "web01|x86_64|8.2.12",
			wantErr: true,
		},
		{
			name:    "Empty input",
			input:   "",
			wantErr: true,
		},
		{
			name:    "Extra fields",
			input:   "a|b|c|d|e",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseServerInfo(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseServerInfo() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if got.Hostname != tt.wantHost {
				t.Errorf("Hostname = %v, want %v", got.Hostname, tt.wantHost)
			}
			if got.Arch != tt.wantArch {
				t.Errorf("Arch = %v, want %v", got.Arch, tt.wantArch)
			}
			if got.PHPVersion != tt.wantPHP {
				t.Errorf("PHPVersion = %v, want %v", got.PHPVersion, tt.wantPHP)
			}
			if got.HasArtisan != tt.wantArtisan {
				t.Errorf("HasArtisan = %v, want %v", got.HasArtisan, tt.wantArtisan)
			}
		})
	}
}

type fakeClient struct {
	cmd string
	res *sshutil.Result
	err error
}

func (f *fakeClient) RunCommand(cmd string) (*sshutil.Result, error) {
	f.cmd = cmd
	return f.res, f.err
}

func TestProbe(t *testing.T) {
	c := &fakeClient{res: &sshutil.Result{Stdout: "web01|x86_64|8.2.12|yes\n"}}
	info, err := Probe(c, "/var/www/it's here")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if !info.HasArtisan || info.Hostname != "web01" {
		t.Errorf("unexpected info: %+v", info)
	}
	if !strings.HasPrefix(c.cmd, `APP_DIR='/var/www/it'\''s here'`) {
		t.Errorf("app dir not quoted: %q", c.cmd)
	}

	c = &fakeClient{res: &sshutil.Result{ExitStatus: 2, Stderr: "boom"}}
	if _, err := Probe(c, ""); err == nil {
		t.Error("expected error for non-zero exit")
	}

	c = &fakeClient{err: errors.New("connection lost")}
	if _, err := Probe(c, ""); err == nil {
		t.Error("expected transport error")
	}
}
