package models

import (
	"time"

	"github.com/google/uuid"

	"officetrack-backend/internal/presence"
)

// PresenceEvent is one raw status report from a mobile client. Device and
// beacon fields are audit metadata; session reconstruction only ever reads
// the timestamp and status.
type PresenceEvent struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	DeviceID         *string         `json:"device_id,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	Status           presence.Status `json:"status"`
	Source           string          `json:"source"`
	BeaconURL        *string         `json:"beacon_url,omitempty"`
	BeaconHTTPStatus *int            `json:"beacon_http_status,omitempty"`
	BeaconLatencyMs  *int            `json:"beacon_latency_ms,omitempty"`
	Platform         *string         `json:"platform,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type ReportEventRequest struct {
	DeviceID         *string         `json:"device_id"`
	Timestamp        time.Time       `json:"timestamp"`
	Status           presence.Status `json:"status"`
	Source           string          `json:"source"`
	BeaconURL        *string         `json:"beacon_url"`
	BeaconHTTPStatus *int            `json:"beacon_http_status"`
	BeaconLatencyMs  *int            `json:"beacon_latency_ms"`
	Platform         *string         `json:"platform"`
}

var ValidEventSources = map[string]bool{
	"APP_LAUNCH":       true,
	"APP_RESUME":       true,
	"TIMER_FOREGROUND": true,
	"NETWORK_CHANGE":   true,
	"BACKGROUND_TASK":  true,
}

var ValidPlatforms = map[string]bool{
	"ios":     true,
	"android": true,
}

func ValidPresenceStatus(s presence.Status) bool {
	switch s {
	case presence.StatusInOffice, presence.StatusOutOfOffice, presence.StatusUnknown:
		return true
	}
	return false
}
