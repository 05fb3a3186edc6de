package sshutil

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "deploy"
	testPassword = "s3cret"
)

// execReply is what the fake server answers for one command
type execReply struct {
	Stdout string
	Stderr string
	Status uint32
}

// testServer is an in-process SSH server with exec and an in-memory sftp subsystem
type testServer struct {
	Addr    string
	HostKey ssh.PublicKey

	config   *ssh.ServerConfig
	files    sftp.Handlers
	commands map[string]execReply

	mu         sync.Mutex
	executed   []string
	authorized []ssh.PublicKey
}

func newTestServer(t *testing.T, commands map[string]execReply) *testServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	s := &testServer{
		HostKey:  signer.PublicKey(),
		files:    sftp.InMemHandler(),
		commands: commands,
	}
	s.config = &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, k := range s.authorized {
				if c.User() == testUser && bytes.Equal(k.Marshal(), key.Marshal()) {
					return nil, nil
				}
			}
			return nil, fmt.Errorf("public key rejected for %q", c.User())
		},
	}
	s.config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	s.Addr = ln.Addr().String()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s
}

// Target returns a Target that trusts this server by fingerprint
func (s *testServer) Target(t *testing.T) Target {
	t.Helper()
	host, port, err := net.SplitHostPort(s.Addr)
	if err != nil {
		t.Fatal(err)
	}
	return Target{
		Host:     host,
		Port:     port,
		User:     testUser,
		Password: testPassword,
		HostKey:  ssh.FingerprintSHA256(s.HostKey),
	}
}

// Authorize accepts key for the test user
func (s *testServer) Authorize(key ssh.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorized = append(s.authorized, key)
}

// Executed returns the commands the server received so far
func (s *testServer) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

func (s *testServer) serve(nc net.Conn) {
	_, chans, reqs, err := ssh.NewServerConn(nc, s.config)
	if err != nil {
		nc.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.session(ch, chReqs)
	}
}

func (s *testServer) session(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			s.mu.Lock()
			s.executed = append(s.executed, payload.Command)
			s.mu.Unlock()

			reply, ok := s.commands[payload.Command]
			if !ok {
				reply = execReply{Stderr: "sh: command not found\n", Status: 127}
			}
			io.WriteString(ch, reply.Stdout)
			io.WriteString(ch.Stderr(), reply.Stderr)
			ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{reply.Status}))
			return
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			srv := sftp.NewRequestServer(ch, s.files)
			srv.Serve()
			srv.Close()
			return
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}
