package runner

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aqakit/brain/pkg/diag"
)

func writeFakeBinary(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindBinaryOverride(t *testing.T) {
	t.Setenv(RunnerPathEnv, "")
	t.Setenv("PATH", t.TempDir())

	path := writeFakeBinary(t, t.TempDir(), BinaryName)
	got, err := FindBinary(path)
	if err != nil {
		t.Fatalf("FindBinary: %v", err)
	}
	if got != path {
		t.Errorf("got %q, want %q", got, path)
	}
}

func TestFindBinaryEnvOverride(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	path := writeFakeBinary(t, t.TempDir(), BinaryName)
	t.Setenv(RunnerPathEnv, path)

	got, err := FindBinary("")
	if err != nil {
		t.Fatalf("FindBinary: %v", err)
	}
	if got != path {
		t.Errorf("got %q, want %q", got, path)
	}
}

func TestFindBinaryFromPath(t *testing.T) {
	t.Setenv(RunnerPathEnv, "")
	dir := t.TempDir()
	path := writeFakeBinary(t, dir, BinaryName)
	t.Setenv("PATH", dir)

	got, err := FindBinary("")
	if err != nil {
		t.Fatalf("FindBinary: %v", err)
	}
	if got != path {
		t.Errorf("got %q, want %q", got, path)
	}
}

func TestFindBinaryNotFound(t *testing.T) {
	t.Setenv(RunnerPathEnv, "")
	t.Setenv("PATH", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, err := FindBinary("")
	if err == nil {
		t.Fatal("expected an error")
	}
	var se *diag.StructuredError
	if !errors.As(err, &se) || se.Code != diag.CodeRunnerNotFound {
		t.Fatalf("expected E4002, got %v", err)
	}
	for _, want := range []string{"target/release", "target/debug", "$PATH", RunnerPathEnv} {
		if !strings.Contains(err.Error()+se.Suggestion, want) {
			t.Errorf("error %q should mention %q", err.Error(), want)
		}
	}
}

func TestNonExecutableIsSkipped(t *testing.T) {
	t.Setenv(RunnerPathEnv, "")
	t.Setenv("PATH", t.TempDir())

	dir := t.TempDir()
	path := filepath.Join(dir, BinaryName)
	if err := os.WriteFile(path, []byte("not a program"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := FindBinary(path); err == nil {
		t.Error("a non-executable file must not be discovered")
	}
}
