// Package embedder wraps the external detect+embed vision service. It is
// the sole point at which that service is consumed; callers never see its
// wire format, only the Result/NoFace contract below. Grounded on the
// teacher's internal/fingerprint/embedding.go EmbeddingClient.
package embedder

import (
	"context"

	"github.com/kozaktomas/facerecog/internal/descriptor"
)

// Mode selects the detector profile: high-precision for enrollment, faster
// for recognition. A closed type, not a duck-typed string, per the design
// notes on typed variants.
type Mode string

const (
	RegisterMode  Mode = "register"
	RecognizeMode Mode = "recognize"
	PreciseMode   Mode = "precise"
)

// Box is the detected face's bounding box in source-image pixel coordinates.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Result is what a successful detect+embed call returns.
type Result struct {
	Descriptor     descriptor.Descriptor
	Box            Box
	DetectionScore float32
	HasLandmarks   bool
}

// Client is the embedder adapter's contract.
type Client interface {
	// DetectAndEmbed runs detection and embedding on image in the given
	// mode. It returns an *apierr.Error with kind NoFace when the detector
	// finds nothing, and InvalidImage when image fails format/size checks.
	DetectAndEmbed(ctx context.Context, image []byte, mode Mode) (Result, error)

	// Warmup is called once at startup so the first real request doesn't
	// pay model load latency.
	Warmup(ctx context.Context) error
}
