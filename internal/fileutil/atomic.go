// Package fileutil provides common file operations.
package fileutil

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// AtomicWrite writes data to the target path atomically.
// The data is fsynced to a pending file in the same directory before it
// replaces the target, so readers never observe a partial write.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(perm), renameio.WithTempDir(filepath.Dir(path)))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		// No-op once the file has been committed
		if err := pending.Cleanup(); err != nil {
			slog.Debug("Failed to clean up pending file", "path", path, "error", err)
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("rename to final path: %w", err)
	}

	return nil
}

// WriteJSON marshals v with indentation and writes it atomically,
// creating the parent directory with mode 0700 if needed.
func WriteJSON(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	return AtomicWrite(path, data, perm)
}
