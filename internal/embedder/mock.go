package embedder

import (
	"context"
	"sync"

	"github.com/kozaktomas/facerecog/internal/apierr"
)

// MockClient is a deterministic, in-memory stand-in for Client used by the
// recognition coordinator and batch engine tests, analogous to the
// teacher's internal/database/mock package.
type MockClient struct {
	mu sync.Mutex
	// Responses maps a caller-chosen image token (the raw bytes, used as a
	// map key via string conversion) to the Result to return for it.
	Responses map[string]Result
	// Default is returned when no entry in Responses matches the image.
	Default    Result
	DefaultErr error

	WarmupErr error
	Calls     int
}

func NewMockClient() *MockClient {
	return &MockClient{Responses: make(map[string]Result)}
}

func (m *MockClient) DetectAndEmbed(_ context.Context, image []byte, _ Mode) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++

	if r, ok := m.Responses[string(image)]; ok {
		return r, nil
	}
	if m.DefaultErr != nil {
		return Result{}, m.DefaultErr
	}
	if m.Default.Descriptor == nil {
		return Result{}, apierr.New(apierr.NoFace, "mock: no response configured")
	}
	return m.Default, nil
}

func (m *MockClient) Warmup(_ context.Context) error {
	return m.WarmupErr
}
