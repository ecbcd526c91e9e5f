package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facerecog/internal/apierr"
)

func TestRespondAPIError_StatusMapping(t *testing.T) {
	cases := []struct {
		kind   apierr.Kind
		status int
	}{
		{apierr.InvalidImage, http.StatusBadRequest},
		{apierr.FaceTooSmall, http.StatusBadRequest},
		{apierr.FaceTooLarge, http.StatusBadRequest},
		{apierr.LowQuality, http.StatusBadRequest},
		{apierr.NoFace, http.StatusBadRequest},
		{apierr.NotFound, http.StatusNotFound},
		{apierr.Duplicate, http.StatusConflict},
		{apierr.CapacityExceeded, http.StatusInsufficientStorage},
		{apierr.NotInitialized, http.StatusServiceUnavailable},
		{apierr.Timeout, http.StatusGatewayTimeout},
		{apierr.Internal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondAPIError(rec, apierr.New(tc.kind, "boom"))
			if rec.Code != tc.status {
				t.Errorf("kind %q: expected status %d, got %d", tc.kind, tc.status, rec.Code)
			}
		})
	}
}

func TestRespondAPIError_NeverLeaksInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	respondAPIError(rec, apierr.Wrap(apierr.Internal, "wrapping", errors.New("leaked credential abc123")))

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["error"] != "internal error" {
		t.Errorf("expected generic internal error message, got %q", body["error"])
	}
}

func TestRespondAPIError_UnknownErrorDefaultsToInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	respondAPIError(rec, errors.New("some plain error"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for a non-apierr error, got %d", rec.Code)
	}
}

func TestDecodeImage(t *testing.T) {
	raw := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	encoded := base64.StdEncoding.EncodeToString(raw)

	got, err := decodeImage(encoded)
	if err != nil {
		t.Fatalf("decodeImage: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("expected decoded bytes %v, got %v", raw, got)
	}
}

func TestDecodeImage_EmptyIsInvalidImage(t *testing.T) {
	_, err := decodeImage("")
	if apierr.KindOf(err) != apierr.InvalidImage {
		t.Errorf("expected InvalidImage for empty string, got %v", err)
	}
}

func TestDecodeImage_BadBase64IsInvalidImage(t *testing.T) {
	_, err := decodeImage("not-valid-base64!!!")
	if apierr.KindOf(err) != apierr.InvalidImage {
		t.Errorf("expected InvalidImage for malformed base64, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}
