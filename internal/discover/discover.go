package discover

import (
	"fmt"
	"strings"

	"apkdeploy/internal/templates"
	"apkdeploy/pkg/sshutil"
)

// ServerInfo encapsulates key information about the remote host
type ServerInfo struct {
	Hostname   string
	Arch       string
	PHPVersion string // "none" when php is not on PATH
	HasArtisan bool   // artisan found in the application directory
}

// SSHClient abstract the required SSH operations for discovery
type SSHClient interface {
	RunCommand(cmd string) (*sshutil.Result, error)
}

// probeScript prints "hostname|arch|php_version|artisan"
const probeScript = `
	php_ver=$(php -r 'echo PHP_VERSION;' 2>/dev/null)
	if [ -z "$php_ver" ]; then
		php_ver="none"
	fi

	artisan="no"
	if [ -n "$APP_DIR" ] && [ -f "$APP_DIR/artisan" ]; then
		artisan="yes"
	fi

	echo "$(uname -n)|$(uname -m)|$php_ver|$artisan"
	`

// Probe executes remote detection and returns information
func Probe(client SSHClient, appDir string) (*ServerInfo, error) {
	cmd := "APP_DIR=" + templates.ShellQuote(appDir) + "\n" + probeScript

	res, err := client.RunCommand(cmd)
	if err != nil {
		return nil, fmt.Errorf("remote probe failed: %w", err)
	}
	if !res.Success() {
		return nil, fmt.Errorf("remote probe exited with status %d: %s", res.ExitStatus, strings.TrimSpace(res.Stderr))
	}

	return parseServerInfo(res.Stdout)
}

// parseServerInfo parses string in "host|arch|php|artisan" format
func parseServerInfo(raw string) (*ServerInfo, error) {
	parts := strings.Split(strings.TrimSpace(raw), "|")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid probe output, expected 4 fields, got: %s", raw)
	}
	return &ServerInfo{
		Hostname:   parts[0],
		Arch:       parts[1],
		PHPVersion: parts[2],
		HasArtisan: parts[3] == "yes",
	}, nil
}
