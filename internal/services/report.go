package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"officetrack-backend/internal/models"
	"officetrack-backend/internal/presence"
)

// EventStore is the storage collaborator feeding session reconstruction.
// Implementations must return events sorted ascending by timestamp.
type EventStore interface {
	ListRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]presence.Event, error)
	ListRangeByUser(ctx context.Context, userIDs []uuid.UUID, from, to time.Time) (map[uuid.UUID][]presence.Event, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
	ListEmployees(ctx context.Context) ([]models.User, error)
}

// ReportService composes the presence core into the reporting queries the
// dashboard consumes. Sessions are always reconstructed over the full fetched
// window and then clipped into sub-windows; reconstructing from truncated
// event subsets would treat a mid-session slice as a fresh open session and
// corrupt inferred-closure timing. All figures are exact minutes; rounding to
// display hours belongs to the handlers.
type ReportService struct {
	events         EventStore
	users          UserStore
	timeoutMinutes int
	now            func() time.Time
}

func NewReportService(events EventStore, users UserStore, timeoutMinutes int) *ReportService {
	return &ReportService{
		events:         events,
		users:          users,
		timeoutMinutes: timeoutMinutes,
		now:            time.Now,
	}
}

const lookback = 24 * time.Hour

type DayBucket struct {
	Date    string
	Minutes float64
}

type DetailOptions struct {
	From *time.Time
	To   *time.Time
	Days int
}

type EmployeeDetail struct {
	User          models.User
	TodayMinutes  float64
	WeekMinutes   float64
	MonthMinutes  float64
	Sessions      []presence.Session
	TotalMinutes  float64
	MinutesPerDay []DayBucket
	RawEvents     []presence.Event
}

type EmployeeSummary struct {
	ID            uuid.UUID
	Name          string
	Email         string
	CurrentStatus presence.Status
	LastSeen      *time.Time
	TodayMinutes  float64
	WeekMinutes   float64
}

type OverviewStats struct {
	CurrentInOffice     int
	TotalMinutesToday   float64
	ActiveEmployees     int
	AverageMinutesToday float64
	MinutesPerDay       []DayBucket
}

// EmployeeDetail reports one subject's presence: today/week/month totals, the
// sessions inside the requested range, a per-day chart, and the raw events.
func (s *ReportService) EmployeeDetail(ctx context.Context, id uuid.UUID, opts DetailOptions) (*EmployeeDetail, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}

	now := s.now().UTC()
	todayStart := startOfDay(now)
	weekStart := startOfWeek(now)
	monthStart := startOfMonth(now)
	days := clampDays(opts.Days, 1, 90, 14)

	var rangeStart, rangeEnd time.Time
	if opts.From != nil && opts.To != nil {
		rangeStart = opts.From.UTC()
		rangeEnd = opts.To.UTC()
	} else {
		rangeStart = todayStart.AddDate(0, 0, -days)
		rangeEnd = now
	}

	bucketStart := todayStart.AddDate(0, 0, -(days - 1))

	// One fetch covering every sub-window plus the 1-day lookback, so
	// sessions that began before a window are visible to the reconstructor.
	fetchStart := earliest(rangeStart, weekStart, monthStart, bucketStart).Add(-lookback)
	fetchEnd := rangeEnd
	if now.After(fetchEnd) {
		fetchEnd = now
	}

	events, err := s.events.ListRange(ctx, id, fetchStart, fetchEnd)
	if err != nil {
		return nil, err
	}

	full := presence.Reconstruct(events, now, s.timeoutMinutes)

	rangeSessions := presence.Clip(full.Sessions, rangeStart, rangeEnd)

	detail := &EmployeeDetail{
		User:          *user,
		TodayMinutes:  presence.SumMinutes(presence.Clip(full.Sessions, todayStart, now)),
		WeekMinutes:   presence.SumMinutes(presence.Clip(full.Sessions, weekStart, now)),
		MonthMinutes:  presence.SumMinutes(presence.Clip(full.Sessions, monthStart, now)),
		Sessions:      rangeSessions,
		TotalMinutes:  presence.SumMinutes(rangeSessions),
		MinutesPerDay: s.dayBuckets(events, todayStart, days, now),
		RawEvents:     filterRange(events, rangeStart, rangeEnd),
	}
	return detail, nil
}

// dayBuckets reconstructs each day independently from the day's events plus
// its own 1-day lookback. Past days use their end-of-day as the reference
// instant for inferred closure, so historical charts do not shift as real
// time advances past the timeout window.
func (s *ReportService) dayBuckets(events []presence.Event, todayStart time.Time, days int, now time.Time) []DayBucket {
	buckets := make([]DayBucket, 0, days)
	for i := days - 1; i >= 0; i-- {
		dayStart := todayStart.AddDate(0, 0, -i)
		dayEnd := dayStart.Add(24 * time.Hour)
		dayRef := dayEnd
		if now.Before(dayRef) {
			dayRef = now
		}

		dayEvents := filterRange(events, dayStart.Add(-lookback), dayEnd)
		result := presence.Reconstruct(dayEvents, dayRef, s.timeoutMinutes)
		clipped := presence.Clip(result.Sessions, dayStart, dayEnd)

		buckets = append(buckets, DayBucket{
			Date:    dayStart.Format("2006-01-02"),
			Minutes: presence.SumMinutes(clipped),
		})
	}
	return buckets
}

// EmployeesOverview lists every employee with current status, last-seen time,
// and today/week totals. Subjects are independent, so the per-subject work
// fans out across goroutines and is combined only after completion.
func (s *ReportService) EmployeesOverview(ctx context.Context) ([]EmployeeSummary, error) {
	employees, err := s.users.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	todayStart := startOfDay(now)
	weekStart := startOfWeek(now)

	ids := make([]uuid.UUID, len(employees))
	for i, u := range employees {
		ids[i] = u.ID
	}

	byUser, err := s.events.ListRangeByUser(ctx, ids, weekStart.Add(-lookback), now)
	if err != nil {
		return nil, err
	}

	summaries := make([]EmployeeSummary, len(employees))
	var wg sync.WaitGroup
	for i, u := range employees {
		wg.Add(1)
		go func(i int, u models.User) {
			defer wg.Done()
			events := byUser[u.ID]
			result := presence.Reconstruct(events, now, s.timeoutMinutes)

			summary := EmployeeSummary{
				ID:            u.ID,
				Name:          u.Name,
				Email:         u.Email,
				CurrentStatus: presence.Classify(result.Sessions, now, s.timeoutMinutes),
				TodayMinutes:  presence.SumMinutes(presence.Clip(result.Sessions, todayStart, now)),
				WeekMinutes:   presence.SumMinutes(presence.Clip(result.Sessions, weekStart, now)),
			}
			if len(events) > 0 {
				last := events[len(events)-1].Timestamp
				summary.LastSeen = &last
			}
			summaries[i] = summary
		}(i, u)
	}
	wg.Wait()

	return summaries, nil
}

// Overview aggregates the whole fleet: currently-present count, total and
// average hours today, and a per-day chart over the last N days. Per-subject
// figures never interact; they are summed after each subject completes.
func (s *ReportService) Overview(ctx context.Context, days int) (*OverviewStats, error) {
	days = clampDays(days, 7, 90, 30)

	ids, err := s.users.ListActiveIDs(ctx)
	if err != nil {
		return nil, err
	}

	stats := &OverviewStats{
		ActiveEmployees: len(ids),
		MinutesPerDay:   []DayBucket{},
	}
	if len(ids) == 0 {
		return stats, nil
	}

	now := s.now().UTC()
	todayStart := startOfDay(now)

	byUser, err := s.events.ListRangeByUser(ctx, ids, todayStart.Add(-lookback), now)
	if err != nil {
		return nil, err
	}

	type userToday struct {
		minutes float64
		present bool
	}
	results := make([]userToday, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			result := presence.Reconstruct(byUser[id], now, s.timeoutMinutes)
			results[i] = userToday{
				minutes: presence.SumMinutes(presence.Clip(result.Sessions, todayStart, now)),
				present: presence.Classify(result.Sessions, now, s.timeoutMinutes) == presence.StatusInOffice,
			}
		}(i, id)
	}
	wg.Wait()

	for _, r := range results {
		stats.TotalMinutesToday += r.minutes
		if r.present {
			stats.CurrentInOffice++
		}
	}
	stats.AverageMinutesToday = stats.TotalMinutesToday / float64(len(ids))

	for i := days - 1; i >= 0; i-- {
		dayStart := todayStart.AddDate(0, 0, -i)
		dayEnd := dayStart.Add(24 * time.Hour)
		dayRef := dayEnd
		if now.Before(dayRef) {
			dayRef = now
		}

		byUserDay, err := s.events.ListRangeByUser(ctx, ids, dayStart.Add(-lookback), dayEnd)
		if err != nil {
			return nil, err
		}

		dayTotal := 0.0
		for _, events := range byUserDay {
			result := presence.Reconstruct(events, dayRef, s.timeoutMinutes)
			dayTotal += presence.SumMinutes(presence.Clip(result.Sessions, dayStart, dayEnd))
		}

		stats.MinutesPerDay = append(stats.MinutesPerDay, DayBucket{
			Date:    dayStart.Format("2006-01-02"),
			Minutes: dayTotal,
		})
	}

	return stats, nil
}

// Time helpers (UTC calendar).

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// startOfWeek returns the most recent Monday 00:00.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func earliest(times ...time.Time) time.Time {
	min := times[0]
	for _, t := range times[1:] {
		if t.Before(min) {
			min = t
		}
	}
	return min
}

func clampDays(n, lo, hi, def int) int {
	if n == 0 {
		return def
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func filterRange(events []presence.Event, from, to time.Time) []presence.Event {
	filtered := make([]presence.Event, 0, len(events))
	for _, e := range events {
		if !e.Timestamp.Before(from) && !e.Timestamp.After(to) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
