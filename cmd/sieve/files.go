package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"sieve/pkg/cel"
	"sieve/pkg/models"
)

func readFilterList(path string) (models.FilterList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read filters: %w", err)
	}
	var list models.FilterList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

func encodeFilterList(w io.Writer, list models.FilterList) error {
	if list == nil {
		list = models.FilterList{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}

// writeFilterList replaces path through a temp file in the same directory so
// a failed write never leaves a truncated list behind.
func writeFilterList(path string, list models.FilterList) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := encodeFilterList(tmp, list); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode filters: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write filters: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func readSubject(path string) (cel.Subject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cel.Subject{}, fmt.Errorf("failed to read subject: %w", err)
	}
	var subject cel.Subject
	if err := json.Unmarshal(data, &subject); err != nil {
		return cel.Subject{}, fmt.Errorf("%s: %w", path, err)
	}
	return subject, nil
}
