package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/facerecog/internal/recognition"
)

// Handlers bundles every dependency the recognition HTTP surface needs.
// Constructed once at startup and registered with the router — no package
// globals, consistent with the rest of the transformed core.
type Handlers struct {
	Coordinator *recognition.Coordinator
}

type registerRequest struct {
	ExternalID  string `json:"externalId"`
	DisplayName string `json:"displayName"`
	ClientRef   string `json:"clientRef"`
	Image       string `json:"image"`
}

type userSummary struct {
	UserID      uint64  `json:"userId"`
	ExternalID  string  `json:"externalId"`
	DisplayName string  `json:"displayName,omitempty"`
	Confidence  float32 `json:"confidence"`
	ProcessingMs float64 `json:"processingMs"`
}

// Register handles POST /recognition/register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.ExternalID == "" {
		respondError(w, http.StatusBadRequest, "externalId is required")
		return
	}

	image, err := decodeImage(req.Image)
	if err != nil {
		respondAPIError(w, err)
		return
	}

	res, err := h.Coordinator.Enroll(r.Context(), recognition.EnrollInput{
		ExternalID:  req.ExternalID,
		DisplayName: req.DisplayName,
		ClientRef:   req.ClientRef,
		Image:       image,
	})
	if err != nil {
		respondAPIError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, userSummary{
		UserID:       res.UserID,
		ExternalID:   req.ExternalID,
		DisplayName:  req.DisplayName,
		Confidence:   res.Confidence,
		ProcessingMs: res.ProcessingMs,
	})
}

type recognizeRequest struct {
	Image string `json:"image"`
}

type recognizeResponse struct {
	Match        *recognition.MatchSummary `json:"match,omitempty"`
	Backend      string                    `json:"backend"`
	ProcessingMs float64                   `json:"processingMs"`
}

// Recognize handles POST /recognition/recognize.
func (h *Handlers) Recognize(w http.ResponseWriter, r *http.Request) {
	var req recognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	image, err := decodeImage(req.Image)
	if err != nil {
		respondAPIError(w, err)
		return
	}

	res, err := h.Coordinator.Identify(r.Context(), recognition.IdentifyInput{Image: image})
	if err != nil {
		respondAPIError(w, err)
		return
	}

	body := recognizeResponse{Match: res.Match, Backend: res.Backend, ProcessingMs: res.ProcessingMs}
	if res.Match == nil {
		respondJSON(w, http.StatusNotFound, body)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

type updateRequest struct {
	ExternalID string `json:"externalId"`
	Image      string `json:"image"`
}

// Update handles PUT /recognition/update.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.ExternalID == "" {
		respondError(w, http.StatusBadRequest, "externalId is required")
		return
	}

	image, err := decodeImage(req.Image)
	if err != nil {
		respondAPIError(w, err)
		return
	}

	res, err := h.Coordinator.Update(r.Context(), recognition.UpdateInput{ExternalID: req.ExternalID, Image: image})
	if err != nil {
		respondAPIError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, userSummary{
		UserID:       res.UserID,
		ExternalID:   req.ExternalID,
		Confidence:   res.Confidence,
		ProcessingMs: res.ProcessingMs,
	})
}
