package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facerecog/internal/cache"
	"github.com/kozaktomas/facerecog/internal/descriptor"
	"github.com/kozaktomas/facerecog/internal/embedder"
	"github.com/kozaktomas/facerecog/internal/index"
	"github.com/kozaktomas/facerecog/internal/recognition"
)

// newTestHandlers builds Handlers around a Coordinator with no descriptor
// store: Identify never touches the store on its happy path (only the
// best-effort log/touch calls do, both nil-guarded), so Recognize is fully
// exercisable without a live database.
func newTestHandlers(t *testing.T, mock *embedder.MockClient) *Handlers {
	t.Helper()
	idx := index.New(index.Config{})
	if err := idx.Init(); err != nil {
		t.Fatalf("index.Init: %v", err)
	}
	coord := recognition.New(mock, nil, cache.NewMemoryCache(0), idx, nil, recognition.DefaultOptions())
	return &Handlers{Coordinator: coord}
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRecognize_NoFaceConfiguredReturnsBadRequest(t *testing.T) {
	mock := embedder.NewMockClient() // no Default -> NoFace
	h := newTestHandlers(t, mock)

	image := base64.StdEncoding.EncodeToString([]byte("some-bytes"))
	rec := postJSON(t, h.Recognize, "/recognition/recognize", recognizeRequest{Image: image})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for NoFace, got %d", rec.Code)
	}
}

func TestRecognize_NoEnrolledUsersReturnsNotFound(t *testing.T) {
	d := make(descriptor.Descriptor, descriptor.Dim)
	mock := embedder.NewMockClient()
	mock.Default = embedder.Result{Descriptor: d, Box: embedder.Box{W: 100, H: 100}, DetectionScore: 0.95, HasLandmarks: true}
	h := newTestHandlers(t, mock)

	image := base64.StdEncoding.EncodeToString([]byte("some-bytes"))
	rec := postJSON(t, h.Recognize, "/recognition/recognize", recognizeRequest{Image: image})

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when no user matches, got %d", rec.Code)
	}
}

func TestRecognize_InvalidJSONBody(t *testing.T) {
	h := newTestHandlers(t, embedder.NewMockClient())

	req := httptest.NewRequest(http.MethodPost, "/recognition/recognize", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	h.Recognize(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestRecognize_EmptyImageIsBadRequest(t *testing.T) {
	h := newTestHandlers(t, embedder.NewMockClient())

	rec := postJSON(t, h.Recognize, "/recognition/recognize", recognizeRequest{Image: ""})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty image, got %d", rec.Code)
	}
}

func TestRegister_RequiresExternalID(t *testing.T) {
	h := newTestHandlers(t, embedder.NewMockClient())

	rec := postJSON(t, h.Register, "/recognition/register", registerRequest{
		Image: base64.StdEncoding.EncodeToString([]byte("x")),
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 when externalId is missing, got %d", rec.Code)
	}
}

func TestUpdate_RequiresExternalID(t *testing.T) {
	h := newTestHandlers(t, embedder.NewMockClient())

	rec := postJSON(t, h.Update, "/recognition/update", updateRequest{
		Image: base64.StdEncoding.EncodeToString([]byte("x")),
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 when externalId is missing, got %d", rec.Code)
	}
}
