package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

// DumpKind names a subdirectory of the cache directory
type DumpKind string

const (
	DumpRecords   DumpKind = "records"
	DumpLLM       DumpKind = "llm"
	DumpSnapshots DumpKind = "snapshots"
	DumpReports   DumpKind = "reports"
)

// cacheRoot is swapped out in tests
var cacheRoot = config.CacheDir

// DumpDir returns the directory for kind
func DumpDir(kind DumpKind) (string, error) {
	cacheDir, err := cacheRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, string(kind)), nil
}

// generateFilename creates a timestamped filename with the given extension.
func generateFilename(ext string) string {
	return time.Now().Format("2006-01-02T15-04-05.000000") + ext
}

// SaveDump writes data as indented JSON to a timestamped file under kind's
// directory and returns the path
func SaveDump[T any](kind DumpKind, data T) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s dump: %w", kind, err)
	}
	return WriteDump(kind, ".json", jsonData)
}

// WriteDump writes raw bytes to a timestamped file under kind's directory
func WriteDump(kind DumpKind, ext string, data []byte) (string, error) {
	dir, err := DumpDir(kind)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s dir: %w", kind, err)
	}

	path := filepath.Join(dir, generateFilename(ext))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s dump: %w", kind, err)
	}
	return path, nil
}

// SaveRecords dumps extracted content records, for offline inspection
func SaveRecords(records []types.ContentRecord) (string, error) {
	return SaveDump(DumpRecords, records)
}
