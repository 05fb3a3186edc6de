package deployer

import (
	"errors"
	"fmt"
)

// ErrSizeMismatch is wrapped in a TransferError when the remote size differs
// from the local file after upload.
var ErrSizeMismatch = errors.New("remote size does not match local size")

// CommandFailedError reports a remote command that ran but exited non-zero.
type CommandFailedError struct {
	Step       string
	Command    string
	ExitStatus int
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("step %q exited with status %d", e.Step, e.ExitStatus)
}
