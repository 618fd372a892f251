// Package mock provides an in-memory StageSet backend for tests and the
// development profile.
package mock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arvindpillai/photoforge/pkg/models"
)

// Stages satisfies models.StageSet. Each stage delegates to an optional
// override func; defaults produce deterministic synthetic output.
type Stages struct {
	Name_            string
	Latency          time.Duration
	FetchImageFunc   func(ctx context.Context, url string, dst []byte) (int, error)
	DetectFacesFunc  func(ctx context.Context, img []byte) ([]models.Face, error)
	BuildMeshFunc    func(ctx context.Context, img []byte, faces []models.Face) (*models.Mesh, error)
	BlendFunc        func(ctx context.Context, original, styled []byte) ([]byte, error)
	ValidateFunc     func(ctx context.Context, img []byte) error
	StoreResultFunc  func(ctx context.Context, job *models.Job, img []byte) (string, error)
	TransferFailures atomic.Int32 // remaining TransferStyle calls that fail
}

// New returns a Stages backend with deterministic defaults.
func New() *Stages {
	return &Stages{Name_: "mock"}
}

func (s *Stages) Name() string { return s.Name_ }

func (s *Stages) pause(ctx context.Context) error {
	if s.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(s.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stages) FetchImage(ctx context.Context, url string, dst []byte) (int, error) {
	if s.FetchImageFunc != nil {
		return s.FetchImageFunc(ctx, url, dst)
	}
	if err := s.pause(ctx); err != nil {
		return 0, err
	}
	n := copy(dst, []byte("synthetic-image:"+url))
	return n, nil
}

func (s *Stages) DetectFaces(ctx context.Context, img []byte) ([]models.Face, error) {
	if s.DetectFacesFunc != nil {
		return s.DetectFacesFunc(ctx, img)
	}
	return []models.Face{{X: 10, Y: 10, Width: 80, Height: 80, Confidence: 0.97}}, nil
}

func (s *Stages) BuildMesh(ctx context.Context, img []byte, faces []models.Face) (*models.Mesh, error) {
	if s.BuildMeshFunc != nil {
		return s.BuildMeshFunc(ctx, img, faces)
	}
	return &models.Mesh{
		Vertices:  [][2]float32{{0, 0}, {1, 0}, {0, 1}},
		Triangles: [][3]int{{0, 1, 2}},
	}, nil
}

func (s *Stages) Blend(ctx context.Context, original, styled []byte) ([]byte, error) {
	if s.BlendFunc != nil {
		return s.BlendFunc(ctx, original, styled)
	}
	return styled, nil
}

func (s *Stages) ValidateQuality(ctx context.Context, img []byte) error {
	if s.ValidateFunc != nil {
		return s.ValidateFunc(ctx, img)
	}
	return nil
}

func (s *Stages) StoreResult(ctx context.Context, job *models.Job, img []byte) (string, error) {
	if s.StoreResultFunc != nil {
		return s.StoreResultFunc(ctx, job, img)
	}
	return fmt.Sprintf("https://results.example.com/%s.%s", job.ID, job.OutputFormat), nil
}

func (s *Stages) NewSession(_ context.Context) (models.StyleSession, error) {
	return &Session{stages: s}, nil
}

// Session is a mock style-transfer session.
type Session struct {
	stages    *Stages
	unhealthy atomic.Bool
	closed    atomic.Bool
}

func (s *Session) TransferStyle(ctx context.Context, img []byte, _ *models.Mesh, themeID, variantID string) ([]byte, error) {
	if err := s.stages.pause(ctx); err != nil {
		return nil, err
	}
	if s.stages.TransferFailures.Load() > 0 {
		s.stages.TransferFailures.Add(-1)
		return nil, fmt.Errorf("style transfer failed for theme %q", themeID)
	}
	out := fmt.Sprintf("styled[%s/%s]:", themeID, variantID)
	return append([]byte(out), img...), nil
}

// MarkUnhealthy makes Healthy return false, simulating a wedged session.
func (s *Session) MarkUnhealthy() { s.unhealthy.Store(true) }

func (s *Session) Healthy() bool { return !s.unhealthy.Load() && !s.closed.Load() }

func (s *Session) Close() error {
	s.closed.Store(true)
	return nil
}
