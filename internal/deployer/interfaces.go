package deployer

import (
	"io/fs"

	"apkdeploy/pkg/sshutil"
)

// Session abstracts one live remote connection
type Session interface {
	Upload(localPath, remotePath string) (int64, error)
	RemoteSize(remotePath string) (int64, error)
	RunCommand(cmd string) (*sshutil.Result, error)
	Close() error
}

// Connector opens a Session to a target
type Connector interface {
	Connect(target sshutil.Target) (Session, error)
}

// LocalFS abstracts the local pre-flight checks
type LocalFS interface {
	Stat(path string) (fs.FileInfo, error)
}
