package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

var _ Store = (*FSStore)(nil)

// FSStore implements Store on the filesystem. Runs live in
// <baseDir>/runs/<id>/ with result.json and trace.jsonl.
//
// Writes use temp file + rename, so concurrent readers never observe a
// partial record and no locks are needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string { return fs.baseDir }

func runDir(baseDir, id string) string {
	return filepath.Join(baseDir, "runs", id)
}

func (fs *FSStore) resultPath(id string) string {
	return filepath.Join(runDir(fs.baseDir, id), "result.json")
}

// Save atomically writes the record.
func (fs *FSStore) Save(record *RunRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	dir := runDir(fs.baseDir, record.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run record: %w", err)
	}

	finalPath := fs.resultPath(record.ID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp result file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename result file: %w", err)
	}

	slog.Debug("Run saved", "id", record.ID, "path", finalPath)
	return nil
}

// Load retrieves a run by ID.
func (fs *FSStore) Load(id string) (*RunRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}

	path := fs.resultPath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}

	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize run record: %w", err)
	}
	return &record, nil
}

// List returns summaries of all readable runs, most recently finished first.
func (fs *FSStore) List() ([]RunInfo, error) {
	entries, err := os.ReadDir(filepath.Join(fs.baseDir, "runs"))
	if os.IsNotExist(err) {
		return []RunInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []RunInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		record, err := fs.Load(entry.Name())
		if err != nil {
			if _, ok := err.(*NotFoundError); !ok {
				slog.Warn("Failed to load run for listing", "id", entry.Name(), "error", err)
			}
			continue
		}
		infos = append(infos, record.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Finished.After(infos[j].Finished)
	})
	slog.Debug("Listed runs", "count", len(infos))
	return infos, nil
}

// Delete removes the run directory, including its trace.
func (fs *FSStore) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	dir := runDir(fs.baseDir, id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Run deleted", "id", id, "path", dir)
	return nil
}
