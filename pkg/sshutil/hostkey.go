package sshutil

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultKnownHostsPath returns ~/.ssh/known_hosts
func DefaultKnownHostsPath() string {
	return filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts")
}

// HostKeyCallback 依 Target 建立主機金鑰驗證
// 優先使用固定指紋 (HostKey)，否則查 known_hosts；兩者皆不接受未知主機
func HostKeyCallback(t Target) (ssh.HostKeyCallback, error) {
	if t.HostKey != "" {
		return pinnedHostKey(t.HostKey)
	}

	path := t.KnownHostsFile
	if path == "" {
		path = DefaultKnownHostsPath()
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s (pin host_key or add the host with ssh-keyscan): %w", path, err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := cb(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) {
			if len(keyErr.Want) == 0 {
				return fmt.Errorf("%w: %s is not in %s (%s)", ErrUntrustedHost, hostname, path, ssh.FingerprintSHA256(key))
			}
			return fmt.Errorf("%w: %s key mismatch, got %s", ErrUntrustedHost, hostname, ssh.FingerprintSHA256(key))
		}
		var revoked *knownhosts.RevokedError
		if errors.As(err, &revoked) {
			return fmt.Errorf("%w: %v", ErrUntrustedHost, err)
		}
		return err
	}, nil
}

func pinnedHostKey(fingerprint string) (ssh.HostKeyCallback, error) {
	want := strings.TrimSpace(fingerprint)
	if !strings.HasPrefix(want, "SHA256:") {
		return nil, fmt.Errorf("host_key must be a SHA256 fingerprint (SHA256:...), got %q", fingerprint)
	}
	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		got := ssh.FingerprintSHA256(key)
		if got != want {
			return fmt.Errorf("%w: %s presented %s, pinned %s", ErrUntrustedHost, hostname, got, want)
		}
		return nil
	}, nil
}
