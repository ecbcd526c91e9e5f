package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/kozaktomas/facerecog/internal/index"
	"github.com/kozaktomas/facerecog/internal/recognition"
	"github.com/kozaktomas/facerecog/internal/store"
)

// SystemHandlers bundles the dependencies backing the admin/observability
// endpoints: rebuild, stats, and the two health probes.
type SystemHandlers struct {
	Index       *index.Index
	Store       *store.Store
	Coordinator *recognition.Coordinator
}

type statsResponse struct {
	Index       index.Stats       `json:"index"`
	ActiveUsers int64             `json:"activeUsers"`
	Recognition recognition.Stats `json:"recognition"`
}

// Stats handles GET /recognition/stats.
func (h *SystemHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	count, err := h.Store.CountActive(r.Context())
	if err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, statsResponse{
		Index:       h.Index.Stats(),
		ActiveUsers: count,
		Recognition: h.Coordinator.Stats(),
	})
}

type rebuildAcceptedResponse struct {
	Status string `json:"status"`
}

// Rebuild handles POST /recognition/index/rebuild: it kicks off an async
// rebuild from the descriptor store and returns immediately, mirroring the
// batch engine's fire-and-return shape.
func (h *SystemHandlers) Rebuild(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		users, err := h.Store.ListActive(ctx)
		if err != nil {
			return
		}
		inputs := make([]index.RebuildInput, 0, len(users))
		for _, u := range users {
			inputs = append(inputs, index.RebuildInput{
				UserID:      u.UserID,
				ExternalID:  u.ExternalID,
				DisplayName: u.DisplayName,
				ClientRef:   u.ClientRef,
				Descriptor:  u.Descriptor,
			})
		}
		_ = h.Index.Rebuild(inputs)
	}()
	respondJSON(w, http.StatusAccepted, rebuildAcceptedResponse{Status: "rebuild started"})
}

type detailedHealthResponse struct {
	Status      string `json:"status"`
	IndexSize   uint64 `json:"indexSize"`
	ActiveUsers int64  `json:"activeUsers"`
}

// DetailedHealth handles GET /health/detailed.
func (h *SystemHandlers) DetailedHealth(w http.ResponseWriter, r *http.Request) {
	count, err := h.Store.CountActive(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, detailedHealthResponse{Status: "degraded"})
		return
	}
	respondJSON(w, http.StatusOK, detailedHealthResponse{
		Status:      "ok",
		IndexSize:   h.Index.Size(),
		ActiveUsers: count,
	})
}
