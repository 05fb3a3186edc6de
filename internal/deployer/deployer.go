package deployer

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"apkdeploy/pkg/sshutil"
)

// Upload copies one local file to a remote path
type Upload struct {
	Local  string
	Remote string
	Verify bool // Compare remote size with the local size afterwards
}

// Step is exactly one Upload or one Run
type Step struct {
	Name   string
	Upload *Upload
	Run    string
}

// Label returns a printable name for the step
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Upload != nil {
		return "upload " + filepath.Base(s.Upload.Local)
	}
	cmd := []rune(strings.Join(strings.Fields(s.Run), " "))
	if len(cmd) > 48 {
		return "run " + string(cmd[:45]) + "..."
	}
	return "run " + string(cmd)
}

// Plan is a named, ordered list of steps executed over one session
type Plan struct {
	Name  string
	Steps []Step
}

// Validate checks the plan shape before anything touches the network
func (p Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("flow %s has no steps", p.Name)
	}
	for i, s := range p.Steps {
		hasUpload := s.Upload != nil
		hasRun := strings.TrimSpace(s.Run) != ""
		if hasUpload == hasRun {
			return fmt.Errorf("flow %s step #%d must define exactly one of upload or run", p.Name, i)
		}
		if hasUpload && (s.Upload.Local == "" || s.Upload.Remote == "") {
			return fmt.Errorf("flow %s step #%d upload needs local and remote paths", p.Name, i)
		}
	}
	return nil
}

// Options Deployment Options
type Options struct {
	DryRun bool
}

// sshConnector dials real SSH sessions via pkg/sshutil
type sshConnector struct {
	progress io.Writer
}

func (c *sshConnector) Connect(target sshutil.Target) (Session, error) {
	client := sshutil.NewClient(target.Resolve(sshutil.DefaultSSHConfigPath()))
	client.Progress = c.progress
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}

// osFS uses the real filesystem
type osFS struct{}

func (osFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Deployer runs plans, supports dependency injection
type Deployer struct {
	connector Connector
	fs        LocalFS
	out       io.Writer
	errOut    io.Writer
}

// NewDeployer creates a new Deployer (nil connector = real SSH with a progress bar on stdout)
func NewDeployer(connector Connector) *Deployer {
	if connector == nil {
		connector = &sshConnector{progress: os.Stdout}
	}
	return &Deployer{
		connector: connector,
		fs:        osFS{},
		out:       os.Stdout,
		errOut:    os.Stderr,
	}
}

// NewDeployerWithDeps allows injecting dependencies (for testing)
func NewDeployerWithDeps(connector Connector, localFS LocalFS, out, errOut io.Writer) *Deployer {
	return &Deployer{
		connector: connector,
		fs:        localFS,
		out:       out,
		errOut:    errOut,
	}
}

// Run executes the plan: local checks, connect, steps in order, close.
// The session is closed exactly once on every path after a successful connect.
func (d *Deployer) Run(target sshutil.Target, plan Plan, opts Options) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	fmt.Fprintf(d.out, ">> Flow %s -> %s", plan.Name, target.Host)
	if opts.DryRun {
		fmt.Fprintf(d.out, " [DRY-RUN]\n")
	} else {
		fmt.Fprintf(d.out, "\n")
	}

	// 0. Local checks before any network traffic
	sizes := make(map[int]int64)
	for i, s := range plan.Steps {
		if s.Upload == nil {
			continue
		}
		size, err := d.checkLocal(s.Upload)
		if err != nil {
			return err
		}
		sizes[i] = size
		fmt.Fprintf(d.out, "   Local %s: %s bytes (%s)\n",
			s.Upload.Local, humanize.Comma(size), humanize.Bytes(uint64(size)))
	}

	if opts.DryRun {
		for _, s := range plan.Steps {
			if s.Upload != nil {
				fmt.Fprintf(d.out, "   [DRY-RUN] Would upload %s -> %s\n", s.Upload.Local, s.Upload.Remote)
			} else {
				fmt.Fprintf(d.out, "   [DRY-RUN] Would run: %s\n", s.Run)
			}
		}
		return nil
	}

	// 1. Connect
	fmt.Fprintf(d.out, ">> Connecting to %s...\n", target.Host)
	sess, err := d.connector.Connect(target)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			slog.Warn("Closing session failed", "host", target.Host, "err", cerr)
		}
		fmt.Fprintln(d.out, "   Connection closed.")
	}()
	fmt.Fprintln(d.out, "   Connected.")

	// 2. Steps
	total := len(plan.Steps)
	for i, s := range plan.Steps {
		fmt.Fprintf(d.out, ">> [%d/%d] %s\n", i+1, total, s.Label())
		if s.Upload != nil {
			err = d.upload(sess, s.Upload, sizes[i])
		} else {
			err = d.run(sess, s)
		}
		if err != nil {
			return fmt.Errorf("step %q: %w", s.Label(), err)
		}
	}

	fmt.Fprintf(d.out, "\n✅ Flow %s completed successfully!\n", plan.Name)
	return nil
}

func (d *Deployer) checkLocal(u *Upload) (int64, error) {
	info, err := d.fs.Stat(u.Local)
	if err != nil {
		return 0, &sshutil.TransferError{Local: u.Local, Remote: u.Remote, Err: err}
	}
	if info.IsDir() {
		return 0, &sshutil.TransferError{Local: u.Local, Remote: u.Remote, Err: fmt.Errorf("%s is a directory", u.Local)}
	}
	return info.Size(), nil
}

func (d *Deployer) upload(sess Session, u *Upload, localSize int64) error {
	n, err := sess.Upload(u.Local, u.Remote)
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "   Uploaded %s bytes to %s\n", humanize.Comma(n), u.Remote)

	if !u.Verify {
		return nil
	}
	remoteSize, err := sess.RemoteSize(u.Remote)
	if err != nil {
		return err
	}
	if remoteSize != localSize {
		return &sshutil.TransferError{
			Local:  u.Local,
			Remote: u.Remote,
			Err:    fmt.Errorf("%w: local %d, remote %d", ErrSizeMismatch, localSize, remoteSize),
		}
	}
	fmt.Fprintf(d.out, "   Verified remote size (%s)\n", humanize.Bytes(uint64(remoteSize)))
	return nil
}

func (d *Deployer) run(sess Session, s Step) error {
	slog.Debug("Running remote command", "step", s.Label(), "cmd", s.Run)
	res, err := sess.RunCommand(s.Run)
	if err != nil {
		return err
	}

	if out := strings.TrimSpace(res.Stdout); out != "" {
		for _, line := range strings.Split(out, "\n") {
			fmt.Fprintf(d.out, "   %s\n", line)
		}
	}
	// stderr is advisory; only the exit status decides success
	if errText := strings.TrimSpace(res.Stderr); errText != "" {
		fmt.Fprintf(d.errOut, "STDERR: %s\n", errText)
	}

	if !res.Success() {
		return &CommandFailedError{Step: s.Label(), Command: s.Run, ExitStatus: res.ExitStatus}
	}
	return nil
}
