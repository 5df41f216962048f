package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"officetrack-backend/internal/models"
	"officetrack-backend/internal/presence"
)

type PresenceEventRepo struct {
	pool *pgxpool.Pool
}

func NewPresenceEventRepo(pool *pgxpool.Pool) *PresenceEventRepo {
	return &PresenceEventRepo{pool: pool}
}

func (r *PresenceEventRepo) Create(ctx context.Context, e *models.PresenceEvent) error {
	query := `
		INSERT INTO presence_events
			(id, user_id, device_id, timestamp, status, source,
			 beacon_url, beacon_http_status, beacon_latency_ms, platform)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	e.ID = uuid.New()

	return r.pool.QueryRow(ctx, query,
		e.ID, e.UserID, e.DeviceID, e.Timestamp, e.Status, e.Source,
		e.BeaconURL, e.BeaconHTTPStatus, e.BeaconLatencyMs, e.Platform,
	).Scan(&e.CreatedAt)
}

// ListRange returns one subject's events in [from, to], timestamp ascending.
// Only the fields session reconstruction consumes are selected.
func (r *PresenceEventRepo) ListRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]presence.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT timestamp, status
		FROM presence_events
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]presence.Event, 0)
	for rows.Next() {
		var e presence.Event
		if err := rows.Scan(&e.Timestamp, &e.Status); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListRangeByUser returns events for many subjects in [from, to], grouped by
// subject with each group timestamp ascending.
func (r *PresenceEventRepo) ListRangeByUser(ctx context.Context, userIDs []uuid.UUID, from, to time.Time) (map[uuid.UUID][]presence.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, timestamp, status
		FROM presence_events
		WHERE user_id = ANY($1) AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC`, userIDs, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byUser := make(map[uuid.UUID][]presence.Event)
	for rows.Next() {
		var userID uuid.UUID
		var e presence.Event
		if err := rows.Scan(&userID, &e.Timestamp, &e.Status); err != nil {
			return nil, err
		}
		byUser[userID] = append(byUser[userID], e)
	}
	return byUser, rows.Err()
}
