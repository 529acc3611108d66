package tools

import (
	"errors"
	"testing"

	"github.com/danmuck/blocksdk/internal/testutil/testlog"
)

type fakeRunner struct {
	name string
	args []string
	code int32
	err  error
}

func (f *fakeRunner) Run(name string, args ...string) ([]byte, []byte, int32, error) {
	f.name = name
	f.args = args
	return nil, []byte("boom"), f.code, f.err
}

func TestBrowserLauncherPerPlatform(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		goos string
		name string
		argc int
	}{
		{goos: "linux", name: "xdg-open", argc: 1},
		{goos: "darwin", name: "open", argc: 1},
		{goos: "windows", name: "rundll32", argc: 2},
	}
	for _, tc := range tests {
		t.Run(tc.goos, func(t *testing.T) {
			r := &fakeRunner{}
			if err := (Browser{Runner: r, GOOS: tc.goos}).Open("https://a.example/x"); err != nil {
				t.Fatalf("open: %v", err)
			}
			if r.name != tc.name || len(r.args) != tc.argc || r.args[len(r.args)-1] != "https://a.example/x" {
				t.Fatalf("unexpected command: %s %v", r.name, r.args)
			}
		})
	}
}

func TestBrowserOpenErrors(t *testing.T) {
	testlog.Start(t)

	if err := (Browser{Runner: &fakeRunner{}}).Open(" "); !errors.Is(err, ErrEmptyURL) {
		t.Fatalf("expected ErrEmptyURL, got %v", err)
	}
	failure := errors.New("exit status 3")
	err := (Browser{Runner: &fakeRunner{code: 3, err: failure}, GOOS: "linux"}).Open("https://a.example")
	if !errors.Is(err, failure) {
		t.Fatalf("expected wrapped runner error, got %v", err)
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	testlog.Start(t)

	_, _, code, err := ExecRunner{}.Run("blocksdk-no-such-binary")
	if err == nil {
		t.Fatalf("expected error for missing binary")
	}
	if code != 127 {
		t.Fatalf("expected exit code 127, got %d", code)
	}
}
