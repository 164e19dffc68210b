package fsx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// WriteFileAtomic replaces path with content via a synced temp file in the
// same directory.
func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	if parent != "." && parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return fmt.Errorf("create parent directory: %w", err)
		}
	}

	tempFile, err := os.CreateTemp(parent, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tempPath)
		}
	}()

	writeErr := func() error {
		if _, err := tempFile.Write(content); err != nil {
			return fmt.Errorf("write temp file: %w", err)
		}
		if err := tempFile.Sync(); err != nil {
			return fmt.Errorf("sync temp file: %w", err)
		}
		if err := tempFile.Chmod(mode); err != nil {
			return fmt.Errorf("chmod temp file: %w", err)
		}
		return nil
	}()
	closeErr := tempFile.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("close temp file: %w", closeErr)
	}

	if err := replaceFile(tempPath, path); err != nil {
		return err
	}
	committed = true
	syncDirectory(parent)
	return nil
}

// WriteJSONAtomic writes value as indented JSON with a trailing newline.
func WriteJSONAtomic(path string, value any, mode os.FileMode) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return WriteFileAtomic(path, append(encoded, '\n'), mode)
}

func replaceFile(source, destination string) error {
	err := os.Rename(source, destination)
	if err == nil {
		return nil
	}
	if runtime.GOOS != "windows" {
		return fmt.Errorf("rename temp file: %w", err)
	}
	if removeErr := os.Remove(destination); removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("remove destination before rename: %w", removeErr)
	}
	if renameErr := os.Rename(source, destination); renameErr != nil {
		return fmt.Errorf("rename temp file after remove: %w", renameErr)
	}
	return nil
}

func syncDirectory(path string) {
	if path == "" {
		path = "."
	}
	// #nosec G304 -- directory path is derived from a caller-provided destination.
	handle, err := os.Open(path)
	if err != nil {
		return
	}
	_ = handle.Sync()
	_ = handle.Close()
}
