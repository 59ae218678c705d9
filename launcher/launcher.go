// Package launcher runs pipeline worker processes with platform-specific
// environment setup.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/researchforge/citekit/logging"
)

// DefaultTimeout bounds a launched process when the caller's context has
// no deadline of its own.
const DefaultTimeout = 5 * time.Minute

// Launcher starts worker processes rooted at a base directory.
type Launcher struct {
	baseDir string
	logger  *logging.Logger

	// extraEnv is appended after the inherited environment.
	extraEnv map[string]string
}

// New creates a launcher rooted at baseDir. An empty baseDir means the
// current working directory.
func New(baseDir string) (*Launcher, error) {
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		baseDir = wd
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	return &Launcher{
		baseDir:  abs,
		logger:   logging.New().WithComponent("launcher"),
		extraEnv: make(map[string]string),
	}, nil
}

// SetEnv adds an environment variable to every launched process.
func (l *Launcher) SetEnv(key, value string) {
	l.extraEnv[key] = value
}

// BaseDir returns the launcher's root directory.
func (l *Launcher) BaseDir() string {
	return l.baseDir
}

// Environment returns the environment for launched processes: the
// inherited environment plus the base directory and any extra variables.
// Paths use the platform's separator.
func (l *Launcher) Environment() []string {
	env := os.Environ()

	base := l.baseDir
	if runtime.GOOS == "windows" {
		base = strings.ReplaceAll(base, "/", `\`)
	}
	env = append(env, "CITEKIT_HOME="+base)

	for k, v := range l.extraEnv {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// Result holds the outcome of a launched process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Launch runs the executable at path with the given arguments and waits
// for it to finish. The path must exist; relative paths resolve against
// the base directory. A non-zero exit is reported in the Result, not as
// an error.
func (l *Launcher) Launch(ctx context.Context, path string, args ...string) (*Result, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.baseDir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("executable not found: %s", path)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	l.logger.Info("launching process", map[string]interface{}{
		"platform": runtime.GOOS,
		"command":  path + " " + strings.Join(args, " "),
	})

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = l.baseDir
	cmd.Env = l.Environment()

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("process timed out")
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			l.logger.Error("process exited non-zero", map[string]interface{}{
				"exit_code": exitCode,
			})
		} else {
			return nil, fmt.Errorf("failed to launch process: %w", err)
		}
	}

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}
