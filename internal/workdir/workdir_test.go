package workdir_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framestudio/pipeline-core/internal/processor"
	"github.com/framestudio/pipeline-core/internal/workdir"
)

func TestCreateBuildsAllSubdirectories(t *testing.T) {
	tmp := t.TempDir()
	dirs, err := workdir.Create(tmp, "video-pipeline", "job-1")
	require.NoError(t, err)

	for _, p := range []string{dirs.Root, dirs.Video, dirs.Frames, dirs.Candidates, dirs.Extracted, dirs.Final, dirs.Commercial} {
		info, err := os.Stat(p)
		require.NoError(t, err, "expected %s to exist", p)
		assert.True(t, info.IsDir())
	}
}

func TestRemoveDeletesTheWholeTree(t *testing.T) {
	tmp := t.TempDir()
	dirs, err := workdir.Create(tmp, "video-pipeline", "job-2")
	require.NoError(t, err)

	require.NoError(t, workdir.Remove(dirs))

	_, err = os.Stat(dirs.Root)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveOnZeroValueIsANoop(t *testing.T) {
	assert.NoError(t, workdir.Remove(processor.WorkDirs{}))
}
