package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rl1809/shelfsync/internal/core/domain"
	"github.com/rl1809/shelfsync/internal/core/service"
)

// HTTPHandler exposes the admin-facing reposition endpoint plus a health
// check. Device traffic never rides this surface; it exists for manual grid
// fixes from the record-store side.
type HTTPHandler struct {
	inventory *service.InventoryService
}

type RepositionHTTPRequest struct {
	MAC         string `json:"mac"`
	Row         int    `json:"row"`
	BottomLevel int    `json:"bottom_level"`
	LeftBox     int    `json:"left_box"`
}

type RepositionHTTPResponse struct {
	Success     bool   `json:"success"`
	SwappedWith string `json:"swapped_with,omitempty"`
	BlockedBy   string `json:"blocked_by,omitempty"`
	Message     string `json:"message,omitempty"`
}

func NewHTTPHandler(inventory *service.InventoryService) *HTTPHandler {
	return &HTTPHandler{inventory: inventory}
}

func (h *HTTPHandler) Reposition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RepositionHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, RepositionHTTPResponse{
			Success: false,
			Message: "invalid request body",
		})
		return
	}

	if req.MAC == "" || req.Row < 1 || req.BottomLevel < 1 || req.LeftBox < 1 {
		writeJSON(w, http.StatusBadRequest, RepositionHTTPResponse{
			Success: false,
			Message: "missing required fields",
		})
		return
	}

	swapped, err := h.inventory.Reposition(r.Context(), req.MAC, req.Row, req.BottomLevel, req.LeftBox)
	if err != nil {
		var conflict *domain.ConflictError
		switch {
		case errors.As(err, &conflict):
			writeJSON(w, http.StatusConflict, RepositionHTTPResponse{
				Success:   false,
				BlockedBy: conflict.BlockingMAC,
				Message:   conflict.Error(),
			})
		case errors.Is(err, domain.ErrDeviceNotFound):
			writeJSON(w, http.StatusNotFound, RepositionHTTPResponse{
				Success: false,
				Message: err.Error(),
			})
		case errors.Is(err, domain.ErrInvalidPlacement):
			writeJSON(w, http.StatusBadRequest, RepositionHTTPResponse{
				Success: false,
				Message: err.Error(),
			})
		default:
			writeJSON(w, http.StatusInternalServerError, RepositionHTTPResponse{
				Success: false,
				Message: "internal error",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, RepositionHTTPResponse{
		Success:     true,
		SwappedWith: swapped,
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
