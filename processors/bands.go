// Package processors provides the concrete processor instances the worker
// registers at startup: the terminal and flow-shape processors the classic
// stack requires in detail, plus minimal stand-ins for the remaining
// pipeline phases used to exercise swaps and inserts.
package processors

import "math"

// Band is a fixed progress-percentage range assigned to one pipeline phase.
type Band struct {
	Start int
	End   int
}

var (
	BandDownload            = Band{5, 10}
	BandExtractFrames       = Band{10, 30}
	BandScoreFrames         = Band{30, 45}
	BandClassify            = Band{50, 65}
	BandExtractProducts     = Band{65, 70}
	BandUploadFrames        = Band{70, 75}
	BandGenerateCommercial  = Band{75, 95}
	BandComplete            = Band{100, 100}
)

// At computes band.start + round((i+1)/n * (band.end - band.start)) for the
// (i+1)-th of n fine-grained units of work within the band.
func (b Band) At(i, n int) int {
	if n <= 0 {
		return b.Start
	}
	frac := float64(i+1) / float64(n)
	return b.Start + int(math.Round(frac*float64(b.End-b.Start)))
}
