package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"officetrack-backend/internal/middleware"
	"officetrack-backend/internal/models"
	"officetrack-backend/internal/repository"
	"officetrack-backend/internal/websocket"
)

type PresenceHandler struct {
	eventRepo *repository.PresenceEventRepo
	userRepo  *repository.UserRepo
	redis     *redis.Client
}

func NewPresenceHandler(eventRepo *repository.PresenceEventRepo, userRepo *repository.UserRepo, redisClient *redis.Client) *PresenceHandler {
	return &PresenceHandler{eventRepo: eventRepo, userRepo: userRepo, redis: redisClient}
}

// ReportEvent ingests one status report from a mobile client. The event is
// stored verbatim; sessions are derived at query time, never here.
func (h *PresenceHandler) ReportEvent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil || !user.IsActive {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Account is not active", r))
		return
	}

	var req models.ReportEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	fieldErrors := make(map[string]string)
	if req.Timestamp.IsZero() {
		fieldErrors["timestamp"] = "Timestamp is required"
	}
	if !models.ValidPresenceStatus(req.Status) {
		fieldErrors["status"] = "Status must be IN_OFFICE, OUT_OF_OFFICE, or UNKNOWN"
	}
	if !models.ValidEventSources[req.Source] {
		fieldErrors["source"] = "Unknown event source"
	}
	if req.Platform != nil && !models.ValidPlatforms[*req.Platform] {
		fieldErrors["platform"] = "Platform must be ios or android"
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fieldErrors, r))
		return
	}

	event := &models.PresenceEvent{
		UserID:           userID,
		DeviceID:         req.DeviceID,
		Timestamp:        req.Timestamp.UTC(),
		Status:           req.Status,
		Source:           req.Source,
		BeaconURL:        req.BeaconURL,
		BeaconHTTPStatus: req.BeaconHTTPStatus,
		BeaconLatencyMs:  req.BeaconLatencyMs,
		Platform:         req.Platform,
	}

	if err := h.eventRepo.Create(r.Context(), event); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record presence event", r))
		return
	}

	h.publishUpdate(r, event)

	writeJSON(w, http.StatusCreated, map[string]interface{}{"ok": true, "event_id": event.ID})
}

func (h *PresenceHandler) publishUpdate(r *http.Request, event *models.PresenceEvent) {
	payload, err := json.Marshal(map[string]interface{}{
		"user_id":   event.UserID,
		"status":    event.Status,
		"timestamp": event.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	h.redis.Publish(r.Context(), websocket.PresenceChannel, payload)
}
