// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploadstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// stageFile writes data to a new file in stagingDir, flushed to disk,
// and returns its path. The caller renames it into place or removes
// it.
func stageFile(stagingDir, pattern string, data []byte) (string, error) {
	tmpFile, err := os.CreateTemp(stagingDir, pattern)
	if err != nil {
		return "", fmt.Errorf("creating staged file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if err := writeAndSync(tmpFile, data); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

// writeSynced creates path, which must not exist, holding data flushed
// to disk.
func writeSynced(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := writeAndSync(file, data); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// writeAndSync writes data, syncs and closes file, in that order. The
// file is closed on every path.
func writeAndSync(file *os.File, data []byte) error {
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", file.Name(), err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("syncing %s: %w", file.Name(), err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", file.Name(), err)
	}
	return nil
}

// syncDir flushes a directory's entries so renames into or out of it
// survive power loss.
func syncDir(path string) error {
	directory, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening directory %s: %w", path, err)
	}
	err = directory.Sync()
	closeErr := directory.Close()
	if err != nil {
		return fmt.Errorf("syncing directory %s: %w", path, err)
	}
	return closeErr
}

// writeFileAtomic replaces finalPath with data. Readers see either the
// old content or the new, never a mix, and after a crash the file
// holds one of the two in full.
func writeFileAtomic(stagingDir, finalPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", finalPath, err)
	}

	tmpPath, err := stageFile(stagingDir, "write-*", data)
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into %s: %w", finalPath, err)
	}
	return syncDir(filepath.Dir(finalPath))
}
