package tokentracker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framestudio/pipeline-core/internal/tokentracker"
)

func TestRecordMergesIntoSameBucket(t *testing.T) {
	tr := tokentracker.New()
	tr.Record("gpt-4", "score-frames", 100, 20)
	tr.Record("gpt-4", "score-frames", 50, 10)

	summary := tr.Summary()
	require.Len(t, summary.Entries, 1)

	e := summary.Entries[0]
	assert.Equal(t, "gpt-4", e.Model)
	assert.Equal(t, "score-frames", e.Processor)
	assert.Equal(t, int64(150), e.PromptTokens)
	assert.Equal(t, int64(30), e.CandidatesTokens)
	assert.Equal(t, int64(180), e.TotalTokens)
	assert.Equal(t, int64(2), e.CallCount)

	assert.Equal(t, int64(180), summary.TotalTokens)
	assert.Equal(t, int64(2), summary.CallCount)
}

func TestSummaryOrderIsDeterministic(t *testing.T) {
	tr := tokentracker.New()
	tr.Record("gpt-4", "classify", 1, 1)
	tr.Record("claude", "score-frames", 1, 1)
	tr.Record("claude", "classify", 1, 1)

	summary := tr.Summary()
	require.Len(t, summary.Entries, 3)
	assert.Equal(t, "claude", summary.Entries[0].Model)
	assert.Equal(t, "classify", summary.Entries[0].Processor)
	assert.Equal(t, "claude", summary.Entries[1].Model)
	assert.Equal(t, "score-frames", summary.Entries[1].Processor)
	assert.Equal(t, "gpt-4", summary.Entries[2].Model)
}

func TestReset(t *testing.T) {
	tr := tokentracker.New()
	tr.Record("gpt-4", "classify", 1, 1)
	tr.Reset()

	summary := tr.Summary()
	assert.Empty(t, summary.Entries)
	assert.Zero(t, summary.TotalTokens)
}
