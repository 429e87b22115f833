package build

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Workspace is the staging area of one build.
// It is owned by that build from staging until Cleanup.
type Workspace struct {
	Dir       string
	FeedPath  string // staged GTFS archive
	FeedSize  int64
	OutputDir string // generator output tree

	cleanupOnce sync.Once
	cleanupErr  error
}

func newWorkspace(tempDir string, id ID) (*Workspace, error) {
	dir, err := os.MkdirTemp(tempDir, fmt.Sprintf("gtfshtml-%s-", id))
	if err != nil {
		return nil, fmt.Errorf("build.newWorkspace: %w", err)
	}
	return &Workspace{
		Dir:       dir,
		FeedPath:  filepath.Join(dir, fmt.Sprintf("%s-gtfs.zip", id)),
		OutputDir: filepath.Join(dir, id.String()),
	}, nil
}

// ArchivePath returns the path of the zipped generator output.
func (w *Workspace) ArchivePath() string {
	return filepath.Join(w.OutputDir, "timetables.zip")
}

// Cleanup removes the workspace directory.
// Only the first call does anything; later calls return the first result.
// A nil workspace or an already removed directory is not an error.
func (w *Workspace) Cleanup() error {
	if w == nil {
		return nil
	}
	w.cleanupOnce.Do(func() {
		if w.Dir == "" {
			return
		}
		err := os.RemoveAll(w.Dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			w.cleanupErr = fmt.Errorf("build.Workspace: %w", err)
		}
	})
	return w.cleanupErr
}
