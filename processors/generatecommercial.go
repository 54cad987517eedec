package processors

import (
	"context"
	"fmt"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/parallelmap"
	"github.com/framestudio/pipeline-core/internal/processor"
)

// CommercialGenerator renders one commercial-ready variant of a frame.
// Modeled as a narrow collaborator interface so the worker can run without
// it wired.
type CommercialGenerator interface {
	Generate(ctx *processor.Context, frame *envelope.Frame, version string) (url string, err error)
}

// GenerateCommercial fans the configured commercial versions out over each
// finally-selected frame.
type GenerateCommercial struct {
	Generator CommercialGenerator
}

func NewGenerateCommercial(generator CommercialGenerator) *GenerateCommercial {
	return &GenerateCommercial{Generator: generator}
}

func (g *GenerateCommercial) ID() string          { return "generate-commercial" }
func (g *GenerateCommercial) DisplayName() string { return "Generate Commercial Images" }
func (g *GenerateCommercial) StatusKey() envelope.Status { return envelope.StatusGenerating }

func (g *GenerateCommercial) IO() processor.IO {
	return processor.IO{
		Requires: []iotype.Tag{iotype.Frames, iotype.Images},
		Produces: []iotype.Tag{iotype.Commercial},
	}
}

type commercialJob struct {
	frame   *envelope.Frame
	version string
}

func (g *GenerateCommercial) Execute(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
	versions := data.Metadata["commercialVersions"]
	versionList, _ := versions.([]string)
	if len(versionList) == 0 {
		versionList = ctx.Config.CommercialVersions
	}
	if len(versionList) == 0 || g.Generator == nil {
		return processor.Result{Success: true, Data: envelope.NewData()}
	}

	var jobs []commercialJob
	for _, f := range data.Frames {
		if !f.IsFinalSelection {
			continue
		}
		for _, v := range versionList {
			jobs = append(jobs, commercialJob{frame: f, version: v})
		}
	}
	if len(jobs) == 0 {
		return processor.Result{Success: true, Data: envelope.NewData()}
	}

	concurrency := parallelmap.GetConcurrency("generate-commercial", opts)
	results := parallelmap.Map(ctx.GoContext, jobs, concurrency, func(_ context.Context, j commercialJob) (*envelope.CommercialImage, error) {
		url, err := g.Generator.Generate(ctx, j.frame, j.version)
		if err != nil {
			return nil, err
		}
		return &envelope.CommercialImage{FrameID: j.frame.ID, Version: j.version, URL: url}, nil
	})

	images := make([]*envelope.CommercialImage, 0, len(results))
	for i, r := range results {
		if pe, isErr := parallelmap.IsParallelError(r); isErr {
			return processor.Result{Success: false, Error: fmt.Sprintf("failed to generate commercial image %d: %v", i, pe.Err)}
		}
		images = append(images, r.(*envelope.CommercialImage))
		ctx.ReportProgress(processor.Progress{Status: g.StatusKey(), Percentage: BandGenerateCommercial.At(i, len(results))})
	}

	out := envelope.NewData()
	out.CommercialImages = images
	return processor.Result{Success: true, Data: out}
}
