// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// Permissions for files holding credentials and the directory around them.
const (
	SecretFilePerm os.FileMode = 0600
	SecretDirPerm  os.FileMode = 0700
)

// AtomicWriteFile writes data to path through a synced temp file in the same
// directory followed by a rename. Readers see either the old or the new
// content, never a partial write. Missing parent directories are created
// with SecretDirPerm.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return AtomicWriteFileWithDir(path, data, perm, SecretDirPerm)
}

// WriteSecretFile atomically writes a file readable only by its owner.
func WriteSecretFile(path string, data []byte) error {
	return AtomicWriteFileWithDir(path, data, SecretFilePerm, SecretDirPerm)
}

// AtomicWriteFileWithDir is AtomicWriteFile with an explicit permission for
// created parent directories.
func AtomicWriteFileWithDir(path string, data []byte, filePerm, dirPerm os.FileMode) (err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	// The rename is only atomic within one filesystem.
	f, err := os.CreateTemp(dir, "."+filepath.Base(absPath)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tempPath)
		}
	}()

	// Restrict before writing so secrets are never briefly world-readable.
	if err = f.Chmod(filePerm); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tempPath, absPath); err != nil {
		return fmt.Errorf("replace %s: %w", absPath, err)
	}
	return nil
}
