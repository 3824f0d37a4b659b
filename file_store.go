package chainable

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore provides a file-based implementation of Store that persists
// reports as JSON files on disk.
type FileStore struct {
	basePath string
	mu       sync.Mutex // Protects file operations
}

// NewFileStore creates a new file-based store that saves reports to the
// specified directory.
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileStore{
		basePath: basePath,
	}, nil
}

// Save persists the report to a JSON file.
func (f *FileStore) Save(_ context.Context, report Report) error {
	if report.RunID == "" {
		return fmt.Errorf("report has no run id")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	// Write to a temp file first so readers never see a partial report.
	filename := f.filename(report.RunID)
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		return fmt.Errorf("failed to move report file into place: %w", err)
	}

	return nil
}

// Load retrieves the report from a JSON file.
func (f *FileStore) Load(_ context.Context, runID string) (*Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.read(f.filename(runID), runID)
}

// List reads every report in the directory.
func (f *FileStore) List(_ context.Context) ([]Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read report directory: %w", err)
	}

	reports := make([]Report, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		report, err := f.read(filepath.Join(f.basePath, name), strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}

	SortReports(reports)
	return reports, nil
}

// Delete removes the report file.
func (f *FileStore) Delete(_ context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.filename(runID)); err != nil {
		if os.IsNotExist(err) {
			// Already deleted, not an error
			return nil
		}
		return fmt.Errorf("failed to delete report file: %w", err)
	}

	return nil
}

func (f *FileStore) read(filename, runID string) (*Report, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrReportNotFound)
		}
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", runID, err)
	}

	return &report, nil
}

// filename returns the full path for a run's report file.
func (f *FileStore) filename(runID string) string {
	return filepath.Join(f.basePath, runID+".json")
}
