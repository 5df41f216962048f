package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"officetrack-backend/internal/models"
	"officetrack-backend/internal/presence"
)

type fakeEventStore struct {
	events map[uuid.UUID][]presence.Event
}

func (f *fakeEventStore) ListRange(_ context.Context, userID uuid.UUID, from, to time.Time) ([]presence.Event, error) {
	var out []presence.Event
	for _, e := range f.events[userID] {
		if !e.Timestamp.Before(from) && !e.Timestamp.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventStore) ListRangeByUser(ctx context.Context, userIDs []uuid.UUID, from, to time.Time) (map[uuid.UUID][]presence.Event, error) {
	byUser := make(map[uuid.UUID][]presence.Event)
	for _, id := range userIDs {
		events, _ := f.ListRange(ctx, id, from, to)
		if len(events) > 0 {
			byUser[id] = events
		}
	}
	return byUser, nil
}

type fakeUserStore struct {
	users []models.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			user := u
			return &user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUserStore) ListActiveIDs(_ context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(f.users))
	for _, u := range f.users {
		if u.IsActive {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (f *fakeUserStore) ListEmployees(_ context.Context) ([]models.User, error) {
	var out []models.User
	for _, u := range f.users {
		if u.Role == models.RoleEmployee {
			out = append(out, u)
		}
	}
	return out, nil
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ev(s string, status presence.Status) presence.Event {
	return presence.Event{Timestamp: ts(s), Status: status}
}

func newTestService(events map[uuid.UUID][]presence.Event, users []models.User, now time.Time) *ReportService {
	svc := NewReportService(&fakeEventStore{events: events}, &fakeUserStore{users: users}, 30)
	svc.now = func() time.Time { return now }
	return svc
}

func employee(name string) models.User {
	return models.User{
		ID:       uuid.New(),
		Name:     name,
		Email:    name + "@example.com",
		Role:     models.RoleEmployee,
		IsActive: true,
	}
}

func TestEmployeeDetail_MidnightSpanningSessionAttribution(t *testing.T) {
	u := employee("alice")
	// now is a Tuesday; session runs from Monday 23:50 to Tuesday 00:20.
	now := ts("2025-02-18T09:00:00Z")
	events := map[uuid.UUID][]presence.Event{
		u.ID: {
			ev("2025-02-17T23:50:00Z", presence.StatusInOffice),
			ev("2025-02-18T00:20:00Z", presence.StatusOutOfOffice),
		},
	}

	svc := newTestService(events, []models.User{u}, now)
	detail, err := svc.EmployeeDetail(context.Background(), u.ID, DetailOptions{})
	if err != nil {
		t.Fatalf("EmployeeDetail failed: %v", err)
	}

	if detail.TodayMinutes != 20 {
		t.Errorf("Expected 20 minutes today (portion after midnight), got %v", detail.TodayMinutes)
	}
	// Both calendar days fall in the current week, so the full session counts.
	if detail.WeekMinutes != 30 {
		t.Errorf("Expected 30 minutes this week, got %v", detail.WeekMinutes)
	}
}

func TestEmployeeDetail_SessionOpenedBeforeWindowIsVisible(t *testing.T) {
	// The 1-day lookback must let the reconstructor see the IN event from
	// before the window, instead of treating today's OUT as an orphan.
	u := employee("bob")
	now := ts("2025-02-18T09:00:00Z")
	events := map[uuid.UUID][]presence.Event{
		u.ID: {
			ev("2025-02-17T22:00:00Z", presence.StatusInOffice),
			ev("2025-02-18T01:00:00Z", presence.StatusOutOfOffice),
		},
	}

	svc := newTestService(events, []models.User{u}, now)
	detail, err := svc.EmployeeDetail(context.Background(), u.ID, DetailOptions{})
	if err != nil {
		t.Fatalf("EmployeeDetail failed: %v", err)
	}

	if detail.TodayMinutes != 60 {
		t.Errorf("Expected 60 minutes today, got %v", detail.TodayMinutes)
	}
}

func TestEmployeeDetail_DayBucketsUseDayEndForInferredClosure(t *testing.T) {
	// Open trailing session three days ago: the bucket must close it at
	// lastEvent + timeout, not keep growing toward the real now.
	u := employee("carol")
	now := ts("2025-02-18T09:00:00Z")
	events := map[uuid.UUID][]presence.Event{
		u.ID: {
			ev("2025-02-15T10:00:00Z", presence.StatusInOffice),
		},
	}

	svc := newTestService(events, []models.User{u}, now)
	detail, err := svc.EmployeeDetail(context.Background(), u.ID, DetailOptions{Days: 7})
	if err != nil {
		t.Fatalf("EmployeeDetail failed: %v", err)
	}

	var bucket *DayBucket
	for i := range detail.MinutesPerDay {
		if detail.MinutesPerDay[i].Date == "2025-02-15" {
			bucket = &detail.MinutesPerDay[i]
		}
	}
	if bucket == nil {
		t.Fatalf("Expected a bucket for 2025-02-15, got %+v", detail.MinutesPerDay)
	}
	if bucket.Minutes != 30 {
		t.Errorf("Expected 30 minutes (closed at timeout boundary), got %v", bucket.Minutes)
	}
}

func TestEmployeeDetail_CustomRangeClipsSessions(t *testing.T) {
	u := employee("dave")
	now := ts("2025-02-18T18:00:00Z")
	events := map[uuid.UUID][]presence.Event{
		u.ID: {
			ev("2025-02-10T09:00:00Z", presence.StatusInOffice),
			ev("2025-02-10T17:00:00Z", presence.StatusOutOfOffice),
			ev("2025-02-12T09:00:00Z", presence.StatusInOffice),
			ev("2025-02-12T17:00:00Z", presence.StatusOutOfOffice),
		},
	}

	from := ts("2025-02-12T00:00:00Z")
	to := ts("2025-02-12T23:59:59Z")
	svc := newTestService(events, []models.User{u}, now)
	detail, err := svc.EmployeeDetail(context.Background(), u.ID, DetailOptions{From: &from, To: &to})
	if err != nil {
		t.Fatalf("EmployeeDetail failed: %v", err)
	}

	if len(detail.Sessions) != 1 {
		t.Fatalf("Expected 1 session in range, got %d", len(detail.Sessions))
	}
	if detail.TotalMinutes != 480 {
		t.Errorf("Expected 480 minutes in range, got %v", detail.TotalMinutes)
	}
	if len(detail.RawEvents) != 2 {
		t.Errorf("Expected 2 raw events in range, got %d", len(detail.RawEvents))
	}
}

func TestEmployeeDetail_UnknownUser(t *testing.T) {
	svc := newTestService(nil, nil, ts("2025-02-18T09:00:00Z"))
	_, err := svc.EmployeeDetail(context.Background(), uuid.New(), DetailOptions{})
	if _, ok := err.(*NotFoundError); !ok {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}

func TestEmployeesOverview_StatusAndTotals(t *testing.T) {
	inOffice := employee("erin")
	stale := employee("frank")
	silent := employee("grace")
	now := ts("2025-02-18T09:00:00Z")

	events := map[uuid.UUID][]presence.Event{
		inOffice.ID: {ev("2025-02-18T08:50:00Z", presence.StatusInOffice)},
		stale.ID:    {ev("2025-02-17T23:50:00Z", presence.StatusInOffice)},
	}

	svc := newTestService(events, []models.User{inOffice, stale, silent}, now)
	summaries, err := svc.EmployeesOverview(context.Background())
	if err != nil {
		t.Fatalf("EmployeesOverview failed: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("Expected 3 summaries, got %d", len(summaries))
	}

	byName := make(map[string]EmployeeSummary)
	for _, s := range summaries {
		byName[s.Name] = s
	}

	if byName["erin"].CurrentStatus != presence.StatusInOffice {
		t.Errorf("Expected erin IN_OFFICE, got %s", byName["erin"].CurrentStatus)
	}
	if byName["erin"].TodayMinutes != 10 {
		t.Errorf("Expected erin 10 minutes today, got %v", byName["erin"].TodayMinutes)
	}
	if byName["frank"].CurrentStatus != presence.StatusOutOfOffice {
		t.Errorf("Expected frank OUT_OF_OFFICE (stale IN), got %s", byName["frank"].CurrentStatus)
	}
	if byName["grace"].CurrentStatus != presence.StatusUnknown {
		t.Errorf("Expected grace UNKNOWN (never seen), got %s", byName["grace"].CurrentStatus)
	}
	if byName["grace"].LastSeen != nil {
		t.Errorf("Expected no last-seen for grace, got %v", byName["grace"].LastSeen)
	}
}

func TestOverview_FleetAggregates(t *testing.T) {
	a := employee("henry")
	b := employee("iris")
	now := ts("2025-02-18T12:00:00Z")

	events := map[uuid.UUID][]presence.Event{
		// 120 minutes closed this morning, still present.
		a.ID: {
			ev("2025-02-18T08:00:00Z", presence.StatusInOffice),
			ev("2025-02-18T10:00:00Z", presence.StatusOutOfOffice),
			ev("2025-02-18T11:50:00Z", presence.StatusInOffice),
		},
		// 60 minutes, long gone.
		b.ID: {
			ev("2025-02-18T07:00:00Z", presence.StatusInOffice),
			ev("2025-02-18T08:00:00Z", presence.StatusOutOfOffice),
		},
	}

	svc := newTestService(events, []models.User{a, b}, now)
	stats, err := svc.Overview(context.Background(), 7)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}

	if stats.ActiveEmployees != 2 {
		t.Errorf("Expected 2 active employees, got %d", stats.ActiveEmployees)
	}
	if stats.CurrentInOffice != 1 {
		t.Errorf("Expected 1 currently in office, got %d", stats.CurrentInOffice)
	}
	// a: 120 closed + 10 open; b: 60.
	if stats.TotalMinutesToday != 190 {
		t.Errorf("Expected 190 total minutes today, got %v", stats.TotalMinutesToday)
	}
	if stats.AverageMinutesToday != 95 {
		t.Errorf("Expected 95 average minutes, got %v", stats.AverageMinutesToday)
	}
	if len(stats.MinutesPerDay) != 7 {
		t.Errorf("Expected 7 day buckets, got %d", len(stats.MinutesPerDay))
	}
	if last := stats.MinutesPerDay[6]; last.Date != "2025-02-18" || last.Minutes != 190 {
		t.Errorf("Expected today's bucket 190 minutes, got %+v", last)
	}
}

func TestOverview_NoUsers(t *testing.T) {
	svc := newTestService(nil, nil, ts("2025-02-18T12:00:00Z"))
	stats, err := svc.Overview(context.Background(), 30)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if stats.CurrentInOffice != 0 || stats.TotalMinutesToday != 0 || stats.ActiveEmployees != 0 {
		t.Errorf("Expected zeroed stats, got %+v", stats)
	}
}

func TestStartOfWeek_Monday(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"wednesday", "2025-02-19T15:00:00Z", "2025-02-17T00:00:00Z"},
		{"monday", "2025-02-17T01:00:00Z", "2025-02-17T00:00:00Z"},
		{"sunday", "2025-02-23T23:00:00Z", "2025-02-17T00:00:00Z"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := startOfWeek(ts(tc.input)); !got.Equal(ts(tc.expected)) {
				t.Errorf("Expected %s, got %v", tc.expected, got)
			}
		})
	}
}
