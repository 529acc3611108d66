// Package tools holds host helpers for the command-line binaries.
package tools

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	logs "github.com/danmuck/blocksdk/internal/logging"
)

var ErrEmptyURL = errors.New("tools: url required")

// CommandRunner abstracts shell command execution.
type CommandRunner interface {
	Run(name string, args ...string) ([]byte, []byte, int32, error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct{}

func (r ExecRunner) Run(name string, args ...string) ([]byte, []byte, int32, error) {
	cmd := exec.Command(name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), int32(exitErr.ExitCode()), err
	}

	exitCode := int32(1)
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		exitCode = 127
	}
	return stdout.Bytes(), stderr.Bytes(), exitCode, err
}

// Browser opens URLs with the platform's launcher. It satisfies the block SDK's Opener.
type Browser struct {
	Runner CommandRunner
	// GOOS overrides runtime.GOOS when choosing the launcher.
	GOOS string
}

func (b Browser) Open(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ErrEmptyURL
	}
	runner := b.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	name, args := launcher(b.goos(), rawURL)
	_, stderr, code, err := runner.Run(name, args...)
	if err != nil {
		logs.Warnf("tools.Browser open failed cmd=%q code=%d stderr=%q", name, code, strings.TrimSpace(string(stderr)))
		return fmt.Errorf("tools: %s exited %d: %w", name, code, err)
	}
	return nil
}

func (b Browser) goos() string {
	if b.GOOS != "" {
		return b.GOOS
	}
	return runtime.GOOS
}

func launcher(goos, rawURL string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{rawURL}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", rawURL}
	default:
		return "xdg-open", []string{rawURL}
	}
}
