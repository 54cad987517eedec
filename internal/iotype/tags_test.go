package iotype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framestudio/pipeline-core/internal/iotype"
)

func TestSetBasics(t *testing.T) {
	s := iotype.NewSet(iotype.Video, iotype.Frames)
	assert.True(t, s.Has(iotype.Video))
	assert.False(t, s.Has(iotype.Commercial))
	assert.True(t, s.HasAll([]iotype.Tag{iotype.Video, iotype.Frames}))
	assert.False(t, s.HasAll([]iotype.Tag{iotype.Video, iotype.Commercial}))
}

func TestSetAddAndClone(t *testing.T) {
	s := iotype.NewSet(iotype.Video)
	clone := s.Clone()
	clone.Add(iotype.Frames)

	assert.False(t, s.Has(iotype.Frames), "clone should be independent of the original")
	assert.True(t, clone.Has(iotype.Frames))
}

func TestMissing(t *testing.T) {
	s := iotype.NewSet(iotype.Video)
	missing := s.Missing([]iotype.Tag{iotype.Video, iotype.Frames, iotype.Commercial})
	require.Len(t, missing, 2)
	assert.Equal(t, []iotype.Tag{iotype.Frames, iotype.Commercial}, missing)
}

func TestListIsStableOrder(t *testing.T) {
	s := iotype.NewSet(iotype.Commercial, iotype.Video, iotype.Frames)
	assert.Equal(t, []iotype.Tag{iotype.Video, iotype.Frames, iotype.Commercial}, s.List())
}

func TestSameMultiset(t *testing.T) {
	cases := []struct {
		name string
		a, b []iotype.Tag
		want bool
	}{
		{"identical", []iotype.Tag{iotype.Frames, iotype.Images}, []iotype.Tag{iotype.Frames, iotype.Images}, true},
		{"reordered", []iotype.Tag{iotype.Frames, iotype.Images}, []iotype.Tag{iotype.Images, iotype.Frames}, true},
		{"different length", []iotype.Tag{iotype.Frames}, []iotype.Tag{iotype.Frames, iotype.Images}, false},
		{"different multiplicity", []iotype.Tag{iotype.Frames, iotype.Frames}, []iotype.Tag{iotype.Frames, iotype.Images}, false},
		{"disjoint", []iotype.Tag{iotype.Video}, []iotype.Tag{iotype.Commercial}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, iotype.SameMultiset(tc.a, tc.b))
		})
	}
}
