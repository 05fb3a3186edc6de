package sshutil

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// authMethodsFor 依序組出驗證方式
// 有密碼或明確金鑰時只用它們；都沒有時才退回 SSH Agent 與預設金鑰
// 回傳的 agent 連線 (可能為 nil) 由呼叫者關閉
func authMethodsFor(t Target) ([]ssh.AuthMethod, net.Conn, error) {
	var methods []ssh.AuthMethod

	if t.KeyPath != "" {
		signer, err := loadSigner(t.KeyPath)
		if err != nil {
			return nil, nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if t.Password != "" {
		password := t.Password
		methods = append(methods,
			ssh.Password(password),
			// Some servers only offer PAM-backed keyboard-interactive.
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(methods) > 0 {
		return methods, nil, nil
	}

	// 1. 嘗試 SSH Agent
	var agentConn net.Conn
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			agentConn = conn
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	// 2. 預設金鑰 (Fallback)
	var signers []ssh.Signer
	for _, name := range []string{"id_rsa", "id_ed25519", "id_ecdsa"} {
		signer, err := loadSigner(filepath.Join(os.Getenv("HOME"), ".ssh", name))
		if err == nil {
			signers = append(signers, signer)
		}
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if len(methods) == 0 {
		return nil, nil, fmt.Errorf("no credentials: set a password, a key, or start ssh-agent")
	}
	return methods, agentConn, nil
}

func loadSigner(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	return signer, nil
}
