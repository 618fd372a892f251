package pipeline

import (
	"fmt"

	"github.com/arvindpillai/photoforge/internal/config"
	"github.com/arvindpillai/photoforge/internal/pipeline/mock"
	"github.com/arvindpillai/photoforge/pkg/models"
)

// NewStages constructs the styling backend named in config. Called once at
// server startup. Additional backends (GPU-backed, remote inference) register
// here as they are implemented.
func NewStages(cfg config.PipelineConfig) (models.StageSet, error) {
	switch cfg.Backend {
	case "mock":
		stages := mock.New()
		stages.Latency = cfg.MockLatency
		return stages, nil
	default:
		return nil, fmt.Errorf("unknown pipeline backend %q: must be mock", cfg.Backend)
	}
}
