// Package job defines the persistent job row and the narrow repository
// surface the pipeline core uses to read and update it. Schema ownership and
// the concrete SQL live outside the core; this package only models the
// columns the core touches.
package job

import (
	"encoding/json"
	"time"

	"github.com/framestudio/pipeline-core/internal/envelope"
)

// StackConfig is the configuration overlay supplied at job submission or by
// a stack template: processor swaps, per-processor options, and insertions.
type StackConfig struct {
	StackID           string                     `json:"stackId,omitempty"`
	ProcessorSwaps    map[string]string          `json:"processorSwaps,omitempty"`
	ProcessorOptions  map[string]map[string]any  `json:"processorOptions,omitempty"`
	InsertProcessors  []InsertSpec               `json:"insertProcessors,omitempty"`
}

// InsertSpec anchors a new processor before or after an existing one.
type InsertSpec struct {
	After     string         `json:"after,omitempty"`
	Before    string         `json:"before,omitempty"`
	Processor string         `json:"processor"`
	Options   map[string]any `json:"options,omitempty"`
}

// Merge overlays call-site configuration onto the receiver (the job's stored
// config), with call-site values winning at the leaf and map-typed fields
// merged key-wise.
func (c StackConfig) Merge(callSite StackConfig) StackConfig {
	out := StackConfig{
		StackID:          c.StackID,
		ProcessorSwaps:   mergeStringMaps(c.ProcessorSwaps, callSite.ProcessorSwaps),
		ProcessorOptions: mergeOptionMaps(c.ProcessorOptions, callSite.ProcessorOptions),
		InsertProcessors: c.InsertProcessors,
	}
	if callSite.StackID != "" {
		out.StackID = callSite.StackID
	}
	if len(callSite.InsertProcessors) > 0 {
		out.InsertProcessors = append(append([]InsertSpec{}, c.InsertProcessors...), callSite.InsertProcessors...)
	}
	return out
}

func mergeStringMaps(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func mergeOptionMaps(base, overlay map[string]map[string]any) map[string]map[string]any {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	out := make(map[string]map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, overlayOpts := range overlay {
		merged := make(map[string]any, len(out[k])+len(overlayOpts))
		for ok, ov := range out[k] {
			merged[ok] = ov
		}
		for ok, ov := range overlayOpts {
			merged[ok] = ov
		}
		out[k] = merged
	}
	return out
}

// Config is the full parsed, defaulted job configuration.
type Config struct {
	Stack               StackConfig `json:"stack,omitempty"`
	CommercialVersions  []string    `json:"commercialVersions,omitempty"`
	PipelineStrategy    string      `json:"pipelineStrategy,omitempty"`
}

// Row is the persistent job record, covering only the columns the core
// reads and writes; the rest of the schema lives outside this package.
type Row struct {
	ID          string            `db:"id" json:"id"`
	Status      envelope.Status   `db:"status" json:"status"`
	VideoURL    string            `db:"video_url" json:"videoUrl"`
	ConfigJSON  json.RawMessage   `db:"config" json:"config"`
	ProgressJSON json.RawMessage  `db:"progress" json:"progress,omitempty"`
	ResultJSON  json.RawMessage   `db:"result" json:"result,omitempty"`
	Error       *string           `db:"error" json:"error,omitempty"`
	CallbackURL *string           `db:"callback_url" json:"callbackUrl,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updatedAt"`
	StartedAt   *time.Time        `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt *time.Time        `db:"completed_at" json:"completedAt,omitempty"`
}

// ParsedConfig unmarshals ConfigJSON, defaulting to a zero-value Config on an
// empty blob.
func (r *Row) ParsedConfig() (Config, error) {
	var cfg Config
	if len(r.ConfigJSON) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(r.ConfigJSON, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Progress is the optional progress snapshot surfaced via onProgress.
type Progress struct {
	Status     envelope.Status `json:"status"`
	Percentage int             `json:"percentage"`
	Message    string          `json:"message,omitempty"`
	Step       string          `json:"step,omitempty"`
	TotalSteps int             `json:"totalSteps,omitempty"`
}
