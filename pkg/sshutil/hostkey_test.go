package sshutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func writeKnownHosts(t *testing.T, addr string, key ssh.PublicKey) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(addr)}, key)
	require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0600))
	return path
}

func TestHostKeyCallback_KnownHosts(t *testing.T) {
	srv := newTestServer(t, map[string]execReply{"true": {}})

	t.Run("known host connects", func(t *testing.T) {
		target := srv.Target(t)
		target.HostKey = ""
		target.KnownHostsFile = writeKnownHosts(t, srv.Addr, srv.HostKey)

		c := NewClient(target)
		require.NoError(t, c.Connect())
		defer c.Close()
		res, err := c.RunCommand("true")
		require.NoError(t, err)
		assert.True(t, res.Success())
	})

	t.Run("changed key is untrusted", func(t *testing.T) {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		other, err := ssh.NewSignerFromKey(priv)
		require.NoError(t, err)

		target := srv.Target(t)
		target.HostKey = ""
		target.KnownHostsFile = writeKnownHosts(t, srv.Addr, other.PublicKey())

		err = NewClient(target).Connect()
		assert.ErrorIs(t, err, ErrUntrustedHost)
	})

	t.Run("unknown host is untrusted", func(t *testing.T) {
		target := srv.Target(t)
		target.HostKey = ""
		target.KnownHostsFile = writeKnownHosts(t, "10.1.2.3:22", srv.HostKey)

		err := NewClient(target).Connect()
		assert.ErrorIs(t, err, ErrUntrustedHost)
	})

	t.Run("missing known_hosts file", func(t *testing.T) {
		target := srv.Target(t)
		target.HostKey = ""
		target.KnownHostsFile = filepath.Join(t.TempDir(), "absent")

		err := NewClient(target).Connect()
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.False(t, connErr.Untrusted())
	})
}

func TestHostKeyCallback_PinnedFormat(t *testing.T) {
	_, err := HostKeyCallback(Target{HostKey: "MD5:aa:bb"})
	assert.Error(t, err)

	_, err = HostKeyCallback(Target{HostKey: " SHA256:abc "})
	assert.NoError(t, err)
}
