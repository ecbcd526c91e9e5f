// Package handlers implements the HTTP surface over the recognition core:
// thin adapters translating JSON requests into coordinator/index/batch
// calls and apierr.Kind values into status codes. Grounded on the
// teacher's internal/web/handlers/common.go (respondJSON/respondError/
// sanitizeForLog) and face_match.go (base64 image decoding,
// bounding-box-shaped responses), generalized from PhotoPrism album
// operations to the recognition API.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kozaktomas/facerecog/internal/apierr"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondAPIError maps an apierr.Kind to the spec's documented status code
// and writes a JSON error body, never leaking the underlying cause.
func respondAPIError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apierr.InvalidImage, apierr.FaceTooSmall, apierr.FaceTooLarge, apierr.LowQuality:
		status = http.StatusBadRequest
	case apierr.NoFace:
		status = http.StatusBadRequest
	case apierr.NotFound:
		status = http.StatusNotFound
	case apierr.Duplicate:
		status = http.StatusConflict
	case apierr.CapacityExceeded:
		status = http.StatusInsufficientStorage
	case apierr.NotInitialized:
		status = http.StatusServiceUnavailable
	case apierr.Timeout:
		status = http.StatusGatewayTimeout
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	respondJSON(w, status, map[string]string{"error": message, "kind": string(kind)})
}

// decodeImage reads a base64-encoded image field, the wire format every
// recognition endpoint's body uses per the spec.
func decodeImage(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, apierr.New(apierr.InvalidImage, "image is required")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apierr.Wrap(apierr.InvalidImage, "invalid base64 image", err)
	}
	return data, nil
}

// HealthCheck handles the liveness probe.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
