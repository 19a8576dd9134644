// Package fileutil provides the file primitives shared by the manifest editor,
// the entry store and the changelog writer.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MaxFileSize bounds every manifest, entry and changelog read.
const MaxFileSize = 16 << 20

// DefaultPerm is used when a file is created rather than replaced.
const DefaultPerm os.FileMode = 0o644

type tempFile interface {
	Name() string
	Chmod(os.FileMode) error
	Write([]byte) (int, error)
	Sync() error
	Close() error
}

type fsOps struct {
	createTemp func(dir, pattern string) (tempFile, error)
	rename     func(oldpath, newpath string) error
	remove     func(path string) error
}

func defaultFSOps() fsOps {
	return fsOps{
		createTemp: func(dir, pattern string) (tempFile, error) {
			return os.CreateTemp(dir, pattern)
		},
		rename: os.Rename,
		remove: os.Remove,
	}
}

// ReadFile reads a file of at most MaxFileSize bytes.
func ReadFile(path string) ([]byte, error) {
	return ReadFileLimited(path, MaxFileSize)
}

// ReadFileLimited reads a file up to maxSize bytes.
func ReadFileLimited(path string, maxSize int64) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 -- paths come from workspace discovery
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("file size %d exceeds maximum allowed size %d", info.Size(), maxSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("file size exceeds maximum allowed size %d", maxSize)
	}
	return data, nil
}

// WriteFile replaces path atomically, keeping the permissions of the file it
// replaces. New files get DefaultPerm.
func WriteFile(path string, data []byte) error {
	perm := DefaultPerm
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return AtomicWriteFile(path, data, perm)
}

// AtomicWriteFile writes data to a sibling temp file and renames it over path,
// so readers never observe a partially written file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return atomicWriteFile(path, data, perm, defaultFSOps())
}

func atomicWriteFile(path string, data []byte, perm os.FileMode, ops fsOps) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	// same directory, rename must not cross filesystems
	tmpFile, err := ops.createTemp(dir, "."+base+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = ops.remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	closed := tmpFile
	tmpFile = nil

	if err := ops.rename(tmpPath, path); err != nil {
		_ = ops.remove(closed.Name())
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
