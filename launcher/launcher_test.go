package launcher

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLaunch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not applicable on Windows")
	}

	dir := t.TempDir()
	writeScript(t, dir, "hello.sh", `echo "hello from $1"`)

	l, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	res, err := l.Launch(context.Background(), "hello.sh", "worker")
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d (stderr: %s)", res.ExitCode, res.Stderr)
	}
	if !strings.Contains(res.Stdout, "hello from worker") {
		t.Errorf("unexpected stdout: %q", res.Stdout)
	}
}

func TestLaunchMissingExecutable(t *testing.T) {
	l, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := l.Launch(context.Background(), "no-such-script.sh"); err == nil {
		t.Error("expected error for missing executable")
	}
}

func TestLaunchNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not applicable on Windows")
	}

	dir := t.TempDir()
	writeScript(t, dir, "fail.sh", "exit 3")

	l, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	res, err := l.Launch(context.Background(), "fail.sh")
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", res.ExitCode)
	}
}

func TestLaunchTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not applicable on Windows")
	}

	dir := t.TempDir()
	writeScript(t, dir, "slow.sh", "sleep 10")

	l, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := l.Launch(ctx, "slow.sh"); err == nil {
		t.Error("expected timeout error")
	}
}

func TestEnvironment(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not applicable on Windows")
	}

	dir := t.TempDir()
	writeScript(t, dir, "env.sh", `echo "home=$CITEKIT_HOME extra=$EXTRA_VAR"`)

	l, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	l.SetEnv("EXTRA_VAR", "set-by-test")

	res, err := l.Launch(context.Background(), "env.sh")
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}
	if !strings.Contains(res.Stdout, "home="+l.BaseDir()) {
		t.Errorf("expected CITEKIT_HOME in env, got %q", res.Stdout)
	}
	if !strings.Contains(res.Stdout, "extra=set-by-test") {
		t.Errorf("expected EXTRA_VAR in env, got %q", res.Stdout)
	}
}

func TestNewResolvesRelativePath(t *testing.T) {
	l, err := New(".")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(l.BaseDir()) {
		t.Errorf("base dir should be absolute, got %q", l.BaseDir())
	}
}
