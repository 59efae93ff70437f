package audiobridge

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrCommandFailed indicates that a privileged shell command exited with a
// non-zero status. The underlying cause (missing binary, denied su request,
// rejected mixer value) is not distinguishable from the exit status alone,
// so all failures collapse into this one kind.
var ErrCommandFailed = errors.New("privileged command failed")

// Runner executes device shell commands on behalf of the bridge. Production
// code talks to the real superuser shell; tests substitute a recording fake.
// Calls block until the spawned process exits.
type Runner interface {
	// Run executes cmd and returns ErrCommandFailed on non-zero exit.
	Run(cmd string) error
	// Output executes cmd and returns its combined stdout/stderr.
	Output(cmd string) (string, error)
}

// SuRunner executes commands through the device superuser shell,
// equivalent to `su -c "<cmd>"`.
type SuRunner struct {
	su  string
	log *logrus.Entry
}

// NewSuRunner creates a runner using the given su binary path.
// An empty path defaults to "su" from PATH.
func NewSuRunner(su string, log *logrus.Entry) *SuRunner {
	if su == "" {
		su = "su"
	}
	return &SuRunner{su: su, log: log}
}

// Run executes cmd as superuser and waits for it to finish.
func (r *SuRunner) Run(cmd string) error {
	r.log.Debugf("executing: %s -c %q", r.su, cmd)
	out, err := exec.Command(r.su, "-c", cmd).CombinedOutput()
	if err != nil {
		r.log.Warnf("command %q failed: %v (output: %s)", cmd, err, strings.TrimSpace(string(out)))
		return fmt.Errorf("%w: %s", ErrCommandFailed, cmd)
	}
	return nil
}

// Output executes cmd as superuser and returns whatever it printed.
func (r *SuRunner) Output(cmd string) (string, error) {
	r.log.Debugf("executing: %s -c %q", r.su, cmd)
	out, err := exec.Command(r.su, "-c", cmd).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrCommandFailed, cmd)
	}
	return string(out), nil
}
