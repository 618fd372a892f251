// Package pipeline runs the multi-stage styling pipeline: face detection,
// mesh generation, style transfer, blending, quality validation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arvindpillai/photoforge/internal/pool"
	"github.com/arvindpillai/photoforge/pkg/models"
)

// maxImageBytes bounds how much of a source photo the pipeline will decode.
const maxImageBytes = 16 << 20

// StyleProcessor implements queue.Processor over a StageSet backend.
// Style transfer runs inside the session pool; image bytes live in pooled
// buffers for the duration of an attempt.
type StyleProcessor struct {
	stages   models.StageSet
	sessions *pool.Pool[models.StyleSession]
	buffers  *pool.BufferPool
	logger   *slog.Logger
}

func NewStyleProcessor(stages models.StageSet, sessions *pool.Pool[models.StyleSession], buffers *pool.BufferPool, logger *slog.Logger) *StyleProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StyleProcessor{
		stages:   stages,
		sessions: sessions,
		buffers:  buffers,
		logger:   logger,
	}
}

// Process runs one styling attempt for the job and returns the stored result
// URL. Every returned error is treated as retryable by the queue.
func (p *StyleProcessor) Process(ctx context.Context, job *models.Job) (string, error) {
	buf := p.buffers.Get(maxImageBytes)
	defer p.buffers.Put(buf)

	n, err := p.stages.FetchImage(ctx, job.OriginalImageURL, buf)
	if err != nil {
		return "", fmt.Errorf("fetching source image: %w", err)
	}
	original := buf[:n]

	faces, err := p.stages.DetectFaces(ctx, original)
	if err != nil {
		return "", fmt.Errorf("detecting faces: %w", err)
	}
	if len(faces) == 0 {
		return "", ErrNoFaces
	}

	mesh, err := p.stages.BuildMesh(ctx, original, faces)
	if err != nil {
		return "", fmt.Errorf("building mesh: %w", err)
	}

	variant := ""
	if job.VariantID != nil {
		variant = *job.VariantID
	}

	var styled []byte
	err = p.sessions.Execute(ctx, func(session models.StyleSession) error {
		var terr error
		styled, terr = session.TransferStyle(ctx, original, mesh, job.ThemeID, variant)
		return terr
	})
	if err != nil {
		return "", fmt.Errorf("transferring style: %w", err)
	}

	blended, err := p.stages.Blend(ctx, original, styled)
	if err != nil {
		return "", fmt.Errorf("blending: %w", err)
	}

	if err := p.stages.ValidateQuality(ctx, blended); err != nil {
		return "", fmt.Errorf("validating output: %w", err)
	}

	resultURL, err := p.stages.StoreResult(ctx, job, blended)
	if err != nil {
		return "", fmt.Errorf("storing result: %w", err)
	}

	p.logger.Debug("pipeline finished", "job_id", job.ID, "faces", len(faces), "backend", p.stages.Name())
	return resultURL, nil
}

// SessionFactory adapts a StageSet's session lifecycle to the resource pool.
type SessionFactory struct {
	Stages models.StageSet
}

func (f SessionFactory) Create(ctx context.Context) (models.StyleSession, error) {
	return f.Stages.NewSession(ctx)
}

func (f SessionFactory) Destroy(s models.StyleSession) error {
	return s.Close()
}

func (f SessionFactory) Validate(s models.StyleSession) bool {
	return s.Healthy()
}
