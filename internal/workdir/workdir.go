// Package workdir manages the ephemeral per-job directory tree the pipeline
// service owns exclusively for a job's lifetime.
package workdir

import (
	"os"
	"path/filepath"

	"github.com/framestudio/pipeline-core/internal/processor"
)

// Create builds the six subdirectories under <tmp>/<namespace>/<jobID> in
// parallel and returns the populated WorkDirs.
func Create(tmpDir, namespace, jobID string) (processor.WorkDirs, error) {
	root := filepath.Join(tmpDir, namespace, jobID)
	dirs := processor.WorkDirs{
		Root:       root,
		Video:      filepath.Join(root, "video"),
		Frames:     filepath.Join(root, "frames"),
		Candidates: filepath.Join(root, "candidates"),
		Extracted:  filepath.Join(root, "extracted"),
		Final:      filepath.Join(root, "final"),
		Commercial: filepath.Join(root, "commercial"),
	}

	paths := []string{dirs.Video, dirs.Frames, dirs.Candidates, dirs.Extracted, dirs.Final, dirs.Commercial}
	errs := make(chan error, len(paths))
	for _, p := range paths {
		p := p
		go func() {
			errs <- os.MkdirAll(p, 0o755)
		}()
	}
	for range paths {
		if err := <-errs; err != nil {
			return dirs, err
		}
	}
	return dirs, nil
}

// Remove recursively deletes the job's work directory tree.
func Remove(dirs processor.WorkDirs) error {
	if dirs.Root == "" {
		return nil
	}
	return os.RemoveAll(dirs.Root)
}
