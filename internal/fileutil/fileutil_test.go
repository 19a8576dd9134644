package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadFileLimited(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		content     string
		maxSize     int64
		wantErr     bool
		errContains string
	}{
		{name: "small manifest", content: "[package]\nname = \"a\"\n", maxSize: 100},
		{name: "exact limit", content: "12345", maxSize: 5},
		{name: "over limit", content: "this content is too long", maxSize: 10, wantErr: true, errContains: "exceeds maximum"},
		{name: "empty", content: "", maxSize: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "Cargo.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("failed to create test file: %v", err)
			}

			data, err := ReadFileLimited(path, tt.maxSize)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(data) != tt.content {
				t.Errorf("content = %q, want %q", data, tt.content)
			}
		})
	}
}

func TestReadFile_Errors(t *testing.T) {
	t.Parallel()

	if _, err := ReadFile("/nonexistent/path/package.json"); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if _, err := ReadFile(t.TempDir()); err == nil {
		t.Error("expected error when reading a directory")
	}
}

func TestWriteFile_PreservesMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "setup.cfg")
	if err := os.WriteFile(path, []byte("[metadata]\nversion = 1.0.0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := WriteFile(path, []byte("[metadata]\nversion = 1.1.0\n")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %o, want 600", info.Mode().Perm())
	}
	data, _ := os.ReadFile(path)
	if string(data) != "[metadata]\nversion = 1.1.0\n" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteFile_NewFileGetsDefaultPerm(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "CHANGELOG.md")
	if err := WriteFile(path, []byte("# Changelog\n")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != DefaultPerm {
		t.Errorf("mode = %o, want %o", info.Mode().Perm(), DefaultPerm)
	}
}

func TestAtomicWriteFile_NoTempFileLeft(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")

	for _, content := range []string{"{}", `{"version":"1.0.0"}`} {
		if err := AtomicWriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "package.json" {
		for _, e := range entries {
			t.Logf("  file: %s", e.Name())
		}
		t.Fatalf("expected only package.json, got %d entries", len(entries))
	}
	data, _ := os.ReadFile(path)
	if string(data) != `{"version":"1.0.0"}` {
		t.Errorf("content = %q", data)
	}
}

func TestAtomicWriteFile_InvalidDirectory(t *testing.T) {
	t.Parallel()

	if err := AtomicWriteFile("/nonexistent/dir/file.txt", []byte("content"), 0o600); err == nil {
		t.Error("expected error for nonexistent directory, got nil")
	}
}

func TestAtomicWriteFile_RenameFailureKeepsOriginal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "Cargo.toml")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	ops := defaultFSOps()
	ops.rename = func(string, string) error { return errors.New("cross-device link") }

	err := atomicWriteFile(path, []byte("replacement"), 0o644, ops)
	if err == nil || !strings.Contains(err.Error(), "rename") {
		t.Fatalf("expected rename error, got %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "original" {
		t.Errorf("original file modified: %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

func TestExistsAndIsDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "pyproject.toml")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if !Exists(file) || !Exists(dir) {
		t.Error("Exists() = false for existing paths")
	}
	if Exists(filepath.Join(dir, "missing")) {
		t.Error("Exists() = true for a missing path")
	}
	if !IsDir(dir) || IsDir(file) {
		t.Error("IsDir() misreports")
	}
}
