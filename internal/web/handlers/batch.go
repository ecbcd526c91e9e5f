package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/facerecog/internal/batch"
)

// BatchHandlers bundles the batch engine dependency for the job endpoints
// and the supplemented SSE progress stream.
type BatchHandlers struct {
	Engine *batch.Engine
}

type batchImageRequest struct {
	ID    string `json:"id,omitempty"`
	Image string `json:"image"`
}

type createBatchRequest struct {
	Images []batchImageRequest `json:"images"`
}

type batchSummary struct {
	ID        string `json:"id"`
	Status    batch.Status `json:"status"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Progress  int    `json:"progress"`
}

// CreateBatch handles POST /recognition/batch.
func (h *BatchHandlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	items := make([]batch.Item, 0, len(req.Images))
	for i, img := range req.Images {
		image, err := decodeImage(img.Image)
		if err != nil {
			respondAPIError(w, err)
			return
		}
		id := img.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		items = append(items, batch.Item{ID: id, Image: image})
	}

	jobID := uuid.NewString()
	job, err := h.Engine.CreateJob(r.Context(), jobID, items)
	if err != nil {
		respondAPIError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, batchSummary{ID: job.ID, Status: job.Status, Total: job.Total})
}

// ListBatches handles GET /recognition/batch.
func (h *BatchHandlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	respondJSON(w, http.StatusOK, h.Engine.ListJobs(limit))
}

// GetBatch handles GET /recognition/batch/{jobId}.
func (h *BatchHandlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	snap := h.Engine.GetJob(jobID)
	if snap == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// StreamBatchEvents handles the supplemented SSE endpoint
// GET /recognition/batch/{jobId}/events, grounded on the teacher's
// internal/web/handlers/sse.go (setupSSEConnection/streamSSEEvents) and
// sort.go's sendSSEEvent, generalized from sort-job events to batch.Event.
func (h *BatchHandlers) StreamBatchEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	snap := h.Engine.GetJob(jobID)
	if snap == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	eventCh, unsubscribe, ok := h.Engine.Subscribe(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sendSSEEvent(w, flusher, "status", snap)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if event.Type == "completed" || event.Type == "failed" {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
