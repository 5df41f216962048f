package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"officetrack-backend/internal/models"
	"officetrack-backend/internal/presence"
	"officetrack-backend/internal/repository"
	"officetrack-backend/internal/services"
)

type AdminHandler struct {
	userRepo *repository.UserRepo
	reports  *services.ReportService
}

func NewAdminHandler(userRepo *repository.UserRepo, reports *services.ReportService) *AdminHandler {
	return &AdminHandler{userRepo: userRepo, reports: reports}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// User management

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userRepo.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list users", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.Role == "" {
		req.Role = models.RoleEmployee
	}

	fieldErrors := make(map[string]string)
	if req.Name == "" || len(req.Name) > 255 {
		fieldErrors["name"] = "Name is required and must be at most 255 characters"
	}
	if !emailRegex.MatchString(req.Email) {
		fieldErrors["email"] = "Invalid email format"
	}
	if len(req.Password) < 8 || len(req.Password) > 100 {
		fieldErrors["password"] = "Password must be 8-100 characters"
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleEmployee {
		fieldErrors["role"] = "Role must be ADMIN or EMPLOYEE"
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fieldErrors, r))
		return
	}

	email := strings.ToLower(req.Email)

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to hash password", r))
		return
	}

	existing, err := h.userRepo.GetByEmailAnyState(r.Context(), email)
	if err == nil {
		if existing.DeletedAt == nil {
			writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "User with this email already exists", r))
			return
		}

		// Soft-deleted account with the same email: restore it with the
		// new credentials instead of tripping the unique constraint.
		if err := h.userRepo.Restore(r.Context(), existing.ID, req.Name, string(hash), req.Role); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to restore user", r))
			return
		}
		restored, err := h.userRepo.GetByID(r.Context(), existing.ID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load restored user", r))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": restored, "restored": true})
		return
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to check existing user", r))
		return
	}

	user := &models.User{
		Name:         req.Name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         req.Role,
	}
	if err := h.userRepo.Create(r.Context(), user); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create user", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": user})
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid user ID", r))
		return
	}

	user, err := h.userRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid user ID", r))
		return
	}

	var req models.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	// Validate and hash the new password before any write, so a rejected
	// password cannot leave the profile half-updated.
	var passwordHash string
	if req.Password != nil {
		if len(*req.Password) < 8 || len(*req.Password) > 100 {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Password must be 8-100 characters", r))
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), 12)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to hash password", r))
			return
		}
		passwordHash = string(hash)
	}

	user, err := h.userRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
		return
	}

	if req.Name != nil && *req.Name != "" {
		user.Name = *req.Name
	}
	if req.Email != nil && emailRegex.MatchString(*req.Email) {
		user.Email = strings.ToLower(*req.Email)
	}
	if req.Role != nil && (*req.Role == models.RoleAdmin || *req.Role == models.RoleEmployee) {
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := h.userRepo.Update(r.Context(), user); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update user", r))
		return
	}

	if passwordHash != "" {
		if err := h.userRepo.UpdatePassword(r.Context(), user.ID, passwordHash); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update password", r))
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid user ID", r))
		return
	}

	if err := h.userRepo.SoftDelete(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete user", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

// Reporting

func (h *AdminHandler) Employees(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.reports.EmployeesOverview(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load employees", r))
		return
	}

	type employeeResp struct {
		ID            uuid.UUID       `json:"id"`
		Name          string          `json:"name"`
		Email         string          `json:"email"`
		CurrentStatus presence.Status `json:"current_status"`
		LastSeen      *time.Time      `json:"last_seen"`
		TodayHours    float64         `json:"today_hours"`
		WeekHours     float64         `json:"week_hours"`
	}

	employees := make([]employeeResp, len(summaries))
	for i, s := range summaries {
		employees[i] = employeeResp{
			ID:            s.ID,
			Name:          s.Name,
			Email:         s.Email,
			CurrentStatus: s.CurrentStatus,
			LastSeen:      s.LastSeen,
			TodayHours:    roundHours(s.TodayMinutes),
			WeekHours:     roundHours(s.WeekMinutes),
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"employees": employees})
}

func (h *AdminHandler) EmployeeDetail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid user ID", r))
		return
	}

	opts := services.DetailOptions{}
	q := r.URL.Query()
	if fromStr, toStr := q.Get("from"), q.Get("to"); fromStr != "" && toStr != "" {
		from, errFrom := time.Parse(time.RFC3339, fromStr)
		to, errTo := time.Parse(time.RFC3339, toStr)
		if errFrom != nil || errTo != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "from/to must be RFC3339 timestamps", r))
			return
		}
		opts.From = &from
		opts.To = &to
	}
	if daysStr := q.Get("days"); daysStr != "" {
		opts.Days, _ = strconv.Atoi(daysStr)
	}

	detail, err := h.reports.EmployeeDetail(r.Context(), id, opts)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	type sessionResp struct {
		Start           time.Time `json:"start"`
		End             time.Time `json:"end"`
		DurationMinutes float64   `json:"duration_minutes"`
	}
	type dayResp struct {
		Date  string  `json:"date"`
		Hours float64 `json:"hours"`
	}
	type eventResp struct {
		Timestamp time.Time       `json:"timestamp"`
		Status    presence.Status `json:"status"`
	}

	sessions := make([]sessionResp, len(detail.Sessions))
	for i, s := range detail.Sessions {
		sessions[i] = sessionResp{
			Start:           s.Start,
			End:             s.End,
			DurationMinutes: round1(s.DurationMinutes),
		}
	}

	hoursPerDay := make([]dayResp, len(detail.MinutesPerDay))
	for i, b := range detail.MinutesPerDay {
		hoursPerDay[i] = dayResp{Date: b.Date, Hours: roundHours(b.Minutes)}
	}

	rawEvents := make([]eventResp, len(detail.RawEvents))
	for i, e := range detail.RawEvents {
		rawEvents[i] = eventResp{Timestamp: e.Timestamp, Status: e.Status}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": map[string]interface{}{
			"id":    detail.User.ID,
			"name":  detail.User.Name,
			"email": detail.User.Email,
		},
		"summary": map[string]interface{}{
			"today_hours": roundHours(detail.TodayMinutes),
			"week_hours":  roundHours(detail.WeekMinutes),
			"month_hours": roundHours(detail.MonthMinutes),
		},
		"sessions":               sessions,
		"total_duration_minutes": round1(detail.TotalMinutes),
		"hours_per_day":          hoursPerDay,
		"raw_events":             rawEvents,
	})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	stats, err := h.reports.Overview(r.Context(), days)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load stats", r))
		return
	}

	type dayResp struct {
		Date       string  `json:"date"`
		TotalHours float64 `json:"total_hours"`
	}
	hoursPerDay := make([]dayResp, len(stats.MinutesPerDay))
	for i, b := range stats.MinutesPerDay {
		hoursPerDay[i] = dayResp{Date: b.Date, TotalHours: roundHours(b.Minutes)}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_in_office":      stats.CurrentInOffice,
		"total_hours_today":      roundHours(stats.TotalMinutesToday),
		"active_employees_count": stats.ActiveEmployees,
		"average_hours_today":    roundHours(stats.AverageMinutesToday),
		"hours_per_day":          hoursPerDay,
	})
}

// Display rounding: exact minutes in, one-decimal figures out. Applied only
// at this layer, after aggregation.

func roundHours(minutes float64) float64 {
	return math.Round(minutes/60*10) / 10
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
