package svcrun

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/renameio/v2"
)

// FileOperator persists snapshots as JSON to a single file, replacing the
// previous snapshot atomically on every persist. A crash mid-persist leaves
// either the old snapshot or the new one, never a torn file.
type FileOperator[S any] struct {
	// Path is the snapshot file location.
	Path string
	// Mode is the file mode for the snapshot file. Zero means 0o644.
	Mode fs.FileMode
}

// NewFileOperator returns a FileOperator writing to path.
func NewFileOperator[S any](path string) *FileOperator[S] {
	return &FileOperator[S]{Path: path}
}

// Persist implements Operator.
func (f *FileOperator[S]) Persist(ctx context.Context, snapshot S) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	mode := f.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := renameio.WriteFile(f.Path, data, mode); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load reads the most recently persisted snapshot back from disk. It is a
// recovery helper for callers that seed services from a previous run.
func (f *FileOperator[S]) Load() (S, error) {
	var snapshot S
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return snapshot, err
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return snapshot, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}
