package sshutil

import (
	"errors"
	"fmt"
)

var (
	// ErrUntrustedHost is wrapped by ConnectionError when the server's host
	// key is unknown or does not match the pinned / known_hosts entry.
	ErrUntrustedHost = errors.New("untrusted host key")

	errNotConnected = errors.New("not connected")
)

// ConnectionError covers network, authentication, host verification and
// timeout failures while establishing a session.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("SSH 連線失敗 [%s]: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Untrusted reports whether the failure was a host key rejection.
func (e *ConnectionError) Untrusted() bool {
	return errors.Is(e.Err, ErrUntrustedHost)
}

// TransferError is returned by Upload and RemoteSize.
type TransferError struct {
	Local  string
	Remote string
	Err    error
}

func (e *TransferError) Error() string {
	if e.Local == "" {
		return fmt.Sprintf("transfer failed (%s): %v", e.Remote, e.Err)
	}
	return fmt.Sprintf("transfer failed (%s -> %s): %v", e.Local, e.Remote, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ExecutionError is a transport-level failure while running a remote
// command. A non-zero exit status is not an ExecutionError.
type ExecutionError struct {
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("執行指令失敗 [%s]: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
