package sshutil

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// CanPrompt reports whether stdin is an interactive terminal.
func CanPrompt() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// PromptPassword 從終端讀取密碼 (不回顯)
func PromptPassword(w io.Writer, target Target) (string, error) {
	fmt.Fprintf(w, "%s@%s's password: ", target.User, target.Host)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
