package recognition

import (
	"context"
	"testing"

	"github.com/kozaktomas/facerecog/internal/apierr"
	"github.com/kozaktomas/facerecog/internal/cache"
	"github.com/kozaktomas/facerecog/internal/descriptor"
	"github.com/kozaktomas/facerecog/internal/embedder"
	"github.com/kozaktomas/facerecog/internal/index"
	"github.com/kozaktomas/facerecog/internal/store"
)

func vec(seed float32) descriptor.Descriptor {
	d := make(descriptor.Descriptor, descriptor.Dim)
	for i := range d {
		d[i] = seed
	}
	return d
}

func newTestIndex(t *testing.T) *index.Index {
	t.Helper()
	idx := index.New(index.Config{})
	if err := idx.Init(); err != nil {
		t.Fatalf("index.Init: %v", err)
	}
	return idx
}

// newIdentifyCoordinator builds a Coordinator with no descriptor store
// (nil is safe: every store access on the Identify path is best-effort and
// guarded by a nil check) for exercising the cache/search/fallback logic in
// isolation.
func newIdentifyCoordinator(emb embedder.Client, idx *index.Index, c cache.Cache) *Coordinator {
	opts := DefaultOptions()
	return New(emb, nil, c, idx, nil, opts)
}

func TestIdentify_HNSWMatch(t *testing.T) {
	idx := newTestIndex(t)
	known := vec(0.1)
	if err := idx.AddUser(42, known, index.Entry{ExternalID: "ext-42", DisplayName: "Ada"}); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	mock := embedder.NewMockClient()
	mock.Default = embedder.Result{Descriptor: known, Box: embedder.Box{W: 100, H: 100}, DetectionScore: 0.95, HasLandmarks: true}

	coord := newIdentifyCoordinator(mock, idx, cache.NewMemoryCache(0))

	res, err := coord.Identify(context.Background(), IdentifyInput{Image: []byte("query-1")})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res.Match == nil {
		t.Fatal("expected a match")
	}
	if res.Match.UserID != 42 {
		t.Errorf("expected userId 42, got %d", res.Match.UserID)
	}
	if res.Backend != "hnsw" {
		t.Errorf("expected hnsw backend, got %q", res.Backend)
	}
}

func TestIdentify_CacheHitSkipsEmbedder(t *testing.T) {
	idx := newTestIndex(t)
	known := vec(0.2)
	if err := idx.AddUser(7, known, index.Entry{ExternalID: "ext-7"}); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	mock := embedder.NewMockClient()
	mock.Default = embedder.Result{Descriptor: known, Box: embedder.Box{W: 100, H: 100}, DetectionScore: 0.95, HasLandmarks: true}

	coord := newIdentifyCoordinator(mock, idx, cache.NewMemoryCache(0))

	ctx := context.Background()
	if _, err := coord.Identify(ctx, IdentifyInput{Image: []byte("same-image")}); err != nil {
		t.Fatalf("first Identify: %v", err)
	}
	callsAfterFirst := mock.Calls

	res, err := coord.Identify(ctx, IdentifyInput{Image: []byte("same-image")})
	if err != nil {
		t.Fatalf("second Identify: %v", err)
	}
	if mock.Calls != callsAfterFirst {
		t.Errorf("expected cached call to skip the embedder, calls went from %d to %d", callsAfterFirst, mock.Calls)
	}
	if res.Match == nil || res.Match.UserID != 7 {
		t.Errorf("expected cached match for user 7, got %+v", res.Match)
	}
}

func TestIdentify_LinearFallbackWhenIndexEmpty(t *testing.T) {
	idx := newTestIndex(t) // never populated, so search() falls through

	target := vec(0.3)
	mock := embedder.NewMockClient()
	mock.Default = embedder.Result{Descriptor: target, Box: embedder.Box{W: 100, H: 100}, DetectionScore: 0.95, HasLandmarks: true}

	coord := newIdentifyCoordinator(mock, idx, cache.NewMemoryCache(0))

	activeUsers := []store.User{
		{UserID: 1, ExternalID: "far", Descriptor: vec(5.0)},
		{UserID: 2, ExternalID: "close", Descriptor: target},
	}

	res, err := coord.Identify(context.Background(), IdentifyInput{Image: []byte("q"), ActiveUsers: activeUsers})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res.Match == nil {
		t.Fatal("expected a linear-fallback match")
	}
	if res.Match.UserID != 2 {
		t.Errorf("expected closest user (2), got %d", res.Match.UserID)
	}
	if res.Backend != "linear" {
		t.Errorf("expected linear backend, got %q", res.Backend)
	}
}

func TestIdentify_NoMatchWithinThreshold(t *testing.T) {
	idx := newTestIndex(t)

	mock := embedder.NewMockClient()
	mock.Default = embedder.Result{Descriptor: vec(0.0), Box: embedder.Box{W: 100, H: 100}, DetectionScore: 0.95, HasLandmarks: true}

	coord := newIdentifyCoordinator(mock, idx, cache.NewMemoryCache(0))

	activeUsers := []store.User{
		{UserID: 9, ExternalID: "far-away", Descriptor: vec(50.0)},
	}

	res, err := coord.Identify(context.Background(), IdentifyInput{Image: []byte("q"), ActiveUsers: activeUsers})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res.Match != nil {
		t.Errorf("expected no match, got %+v", res.Match)
	}
}

func TestIdentify_NoFaceDetectedPropagatesError(t *testing.T) {
	idx := newTestIndex(t)
	mock := embedder.NewMockClient() // no Default configured -> NoFace

	coord := newIdentifyCoordinator(mock, idx, cache.NewMemoryCache(0))

	_, err := coord.Identify(context.Background(), IdentifyInput{Image: []byte("blank")})
	if apierr.KindOf(err) != apierr.NoFace {
		t.Errorf("expected NoFace error, got %v", err)
	}
}

func TestValidateFace(t *testing.T) {
	opts := DefaultOptions()

	tests := []struct {
		name    string
		det     embedder.Result
		wantErr apierr.Kind
	}{
		{"ok", embedder.Result{Box: embedder.Box{W: 100, H: 100}, DetectionScore: 0.9}, ""},
		{"too small", embedder.Result{Box: embedder.Box{W: 10, H: 10}, DetectionScore: 0.9}, apierr.FaceTooSmall},
		{"too large", embedder.Result{Box: embedder.Box{W: 5000, H: 5000}, DetectionScore: 0.9}, apierr.FaceTooLarge},
		{"low quality", embedder.Result{Box: embedder.Box{W: 100, H: 100}, DetectionScore: 0.1}, apierr.LowQuality},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateFace(tc.det, opts)
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if apierr.KindOf(err) != tc.wantErr {
				t.Errorf("expected kind %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestComputeConfidence(t *testing.T) {
	withLandmarks := computeConfidence(embedder.Result{DetectionScore: 1.0, HasLandmarks: true})
	if withLandmarks != 0.9 {
		t.Errorf("expected 0.9 with landmarks, got %v", withLandmarks)
	}

	withoutLandmarks := computeConfidence(embedder.Result{DetectionScore: 1.0, HasLandmarks: false})
	if withoutLandmarks != 0.7 {
		t.Errorf("expected 0.7 without landmarks, got %v", withoutLandmarks)
	}
}

func TestLinearFallback_PicksClosestUnderThreshold(t *testing.T) {
	target := vec(1.0)
	users := []store.User{
		{UserID: 1, Descriptor: vec(10.0)},
		{UserID: 2, Descriptor: vec(1.01)},
		{UserID: 3, Descriptor: vec(20.0)},
	}

	match := linearFallback(target, users, 5.0)
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.UserID != 2 {
		t.Errorf("expected closest user 2, got %d", match.UserID)
	}
}

func TestLinearFallback_NoneWithinThreshold(t *testing.T) {
	target := vec(1.0)
	users := []store.User{
		{UserID: 1, Descriptor: vec(100.0)},
	}

	if match := linearFallback(target, users, 0.01); match != nil {
		t.Errorf("expected no match, got %+v", match)
	}
}

func TestLoadProfiles(t *testing.T) {
	profiles, err := LoadProfiles()
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	for _, name := range []ProfileName{HighSecurity, Balanced, Fast, Permissive} {
		p, ok := profiles[name]
		if !ok {
			t.Errorf("expected profile %q to be present", name)
			continue
		}
		if p.ConfidenceThreshold <= 0 || p.ConfidenceThreshold >= 1 {
			t.Errorf("profile %q has implausible threshold %f", name, p.ConfidenceThreshold)
		}
	}
}
