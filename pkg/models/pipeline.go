package models

import "context"

// Face is one detected face region in the source photo.
type Face struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Mesh is the warp geometry computed from the detected faces.
type Mesh struct {
	Vertices  [][2]float32
	Triangles [][3]int
}

// StageSet is the set of pipeline stages a styling backend must implement.
// Never call a concrete backend directly — always inject this interface.
type StageSet interface {
	// Name returns the backend identifier (e.g., "mock").
	Name() string
	// FetchImage downloads the source photo into dst and returns the byte
	// count. dst is typically a pooled buffer.
	FetchImage(ctx context.Context, url string, dst []byte) (int, error)
	DetectFaces(ctx context.Context, img []byte) ([]Face, error)
	BuildMesh(ctx context.Context, img []byte, faces []Face) (*Mesh, error)
	// Blend composites the styled output over the original.
	Blend(ctx context.Context, original, styled []byte) ([]byte, error)
	// ValidateQuality rejects outputs that fail the quality gate.
	ValidateQuality(ctx context.Context, img []byte) error
	// StoreResult persists the final image and returns its URL.
	StoreResult(ctx context.Context, job *Job, img []byte) (string, error)
	// NewSession opens a style-transfer session. Sessions are expensive and
	// are pooled by the caller.
	NewSession(ctx context.Context) (StyleSession, error)
}

// StyleSession is a handle to a style-transfer runtime (model weights loaded,
// scratch memory reserved). Not safe for concurrent use; the resource pool
// guarantees exclusive access between acquire and release.
type StyleSession interface {
	TransferStyle(ctx context.Context, img []byte, mesh *Mesh, themeID, variantID string) ([]byte, error)
	// Healthy reports whether the session can still serve transfers.
	Healthy() bool
	Close() error
}
