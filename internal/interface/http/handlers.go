package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/metka-hub/metka-attendance-hub/internal/application/command"
	"github.com/metka-hub/metka-attendance-hub/internal/application/query"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/geo"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/pkg/logger"
	"github.com/metka-hub/metka-attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTH MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// authenticated resolves the bearer token to a user hash and stores both in
// the request context.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value := bearerToken(r)
		if value == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
			return
		}

		userHash, err := s.deps.Tokens.Validate(r.Context(), value, timeutil.Now())
		if err != nil {
			switch {
			case errors.Is(err, shared.ErrTokenNotFound), errors.Is(err, shared.ErrTokenExpired):
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			default:
				s.logger.Error("token validation failed", logger.Err(err))
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "Token validation failed")
			}
			return
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, contextKeyUserHash, userHash)
		ctx = context.WithValue(ctx, contextKeyToken, value)
		next(w, r.WithContext(ctx))
	}
}

// admin guards the slab administration endpoints with the configured API key.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.AdminAPIKeyHash == "" {
			writeJSONError(w, http.StatusNotFound, "not_found", "Not found")
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing API key")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(s.config.AdminAPIKeyHash), []byte(key)); err != nil {
			writeJSONError(w, http.StatusForbidden, "forbidden", "Invalid API key")
			return
		}

		next(w, r)
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & ROOT
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type componentStatus struct {
		Name   string `json:"name"`
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}

	status := http.StatusOK
	overall := "healthy"
	components := make([]componentStatus, 0, len(s.deps.HealthCheckers))

	for name, p := range s.deps.HealthCheckers {
		cs := componentStatus{Name: name, Status: "up"}
		if err := p.Ping(r.Context()); err != nil {
			cs.Status = "down"
			cs.Error = err.Error()
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		components = append(components, cs)
	}

	writeJSON(w, status, map[string]interface{}{
		"status":     overall,
		"components": components,
		"time":       time.Now().UTC(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "metka-attendance-hub",
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token               string    `json:"token"`
	ExpiresAt           time.Time `json:"expires_at"`
	FirstName           string    `json:"first_name"`
	LastName            string    `json:"last_name"`
	Group               string    `json:"group,omitempty"`
	Groups              []string  `json:"groups"`
	NeedsGroupSelection bool      `json:"needs_group_selection"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	result, err := s.deps.LoginHandler.Handle(r.Context(), command.LoginCommand{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrBadCredentials):
			writeJSONError(w, http.StatusUnauthorized, "bad_credentials", "Wrong username or password")
		case shared.IsExternalService(err):
			writeJSONError(w, http.StatusBadGateway, "upstream_unavailable", "Identity provider is unavailable")
		default:
			s.serverError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:               result.Token,
		ExpiresAt:           result.ExpiresAt,
		FirstName:           result.FirstName,
		LastName:            result.LastName,
		Group:               string(result.Group),
		Groups:              result.Groups,
		NeedsGroupSelection: result.NeedsGroupSelection(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	err := s.deps.LogoutHandler.Handle(r.Context(), command.LogoutCommand{
		Token: tokenFromContext(r.Context()),
	})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Users.Get(r.Context(), userHashFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Unknown user")
			return
		}
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_hash": u.Hash,
		"group":     string(u.Group),
		"has_group": u.HasGroup(),
	})
}

type selectGroupRequest struct {
	Group string `json:"group"`
}

func (s *Server) handleSelectGroup(w http.ResponseWriter, r *http.Request) {
	var req selectGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	err := s.deps.SelectGroupHandler.Handle(r.Context(), command.SelectGroupCommand{
		UserHash: userHashFromContext(r.Context()),
		Group:    lesson.GroupCode(req.Group),
	})
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Unknown user")
			return
		}
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"group": req.Group})
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE ENDPOINT
// ══════════════════════════════════════════════════════════════════════════════

type lessonDTO struct {
	ID               string   `json:"id"`
	Start            string   `json:"start"`
	End              string   `json:"end"`
	Locations        []string `json:"locations"`
	Address          string   `json:"address,omitempty"`
	Code             string   `json:"code"`
	Name             string   `json:"name"`
	Groups           []string `json:"groups"`
	Teachers         []string `json:"teachers"`
	AttendedLocation string   `json:"attended_location,omitempty"`
}

func toLessonDTO(l *lesson.Lesson) lessonDTO {
	locations := make([]string, len(l.Locations))
	for i, c := range l.Locations {
		locations[i] = string(c)
	}
	groups := make([]string, len(l.Groups))
	for i, g := range l.Groups {
		groups[i] = string(g)
	}
	return lessonDTO{
		ID:               l.ID,
		Start:            l.Start.Format(time.RFC3339),
		End:              l.End.Format(time.RFC3339),
		Locations:        locations,
		Address:          l.Address,
		Code:             l.Code,
		Name:             l.Name,
		Groups:           groups,
		Teachers:         l.Teachers,
		AttendedLocation: l.AttendedLocation,
	}
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	q := query.GetScheduleQuery{
		UserHash: userHashFromContext(r.Context()),
	}

	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := timeutil.ParseDate(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD")
			return
		}
		q.Date = date
	}

	lessons, err := s.deps.GetScheduleHandler.Handle(r.Context(), q)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrUserNotFound):
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Unknown user")
		case shared.IsExternalService(err):
			writeJSONError(w, http.StatusBadGateway, "upstream_unavailable", "Timetable source is unavailable")
		default:
			s.serverError(w, r, err)
		}
		return
	}

	dtos := make([]lessonDTO, len(lessons))
	for i, l := range lessons {
		dtos[i] = toLessonDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTEND ENDPOINT
// ══════════════════════════════════════════════════════════════════════════════

type attendRequest struct {
	SlabID          string  `json:"slab_id"`
	Lat             float64 `json:"lat"`
	Long            float64 `json:"long"`
	ConfirmUpdate   bool    `json:"confirm_update"`
	ConfirmOverride bool    `json:"confirm_override"`
}

type attendResponse struct {
	Outcome          string     `json:"outcome"`
	Success          bool       `json:"success"`
	Lesson           *lessonDTO `json:"lesson,omitempty"`
	DistanceMeters   float64    `json:"distance_meters,omitempty"`
	ExistingLocation string     `json:"existing_location,omitempty"`
	Location         string     `json:"location,omitempty"`
}

func (s *Server) handleAttend(w http.ResponseWriter, r *http.Request) {
	var req attendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	result, err := s.deps.AttendHandler.Handle(r.Context(), command.AttendCommand{
		UserHash:        userHashFromContext(r.Context()),
		SlabID:          req.SlabID,
		Coordinates:     geo.Coordinates{Lat: req.Lat, Long: req.Long},
		ConfirmUpdate:   req.ConfirmUpdate,
		ConfirmOverride: req.ConfirmOverride,
	})
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrSlabNotFound):
			writeJSONError(w, http.StatusBadRequest, "unknown_slab", "Unknown check-in point")
		case errors.Is(err, shared.ErrUserNotFound):
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Unknown user")
		case shared.IsExternalService(err):
			writeJSONError(w, http.StatusBadGateway, "upstream_unavailable", "Timetable source is unavailable")
		default:
			s.serverError(w, r, err)
		}
		return
	}

	resp := attendResponse{
		Outcome:          string(result.Outcome),
		Success:          result.Outcome.Success(),
		ExistingLocation: string(result.ExistingLocation),
	}
	if result.Lesson != nil {
		dto := toLessonDTO(result.Lesson)
		resp.Lesson = &dto
	}
	if result.DistanceMeters > 0 {
		resp.DistanceMeters = result.DistanceMeters
	}
	if result.CheckIn != nil {
		resp.Location = string(result.CheckIn.Location)
	}

	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// SLAB ADMINISTRATION
// ══════════════════════════════════════════════════════════════════════════════

type slabRequest struct {
	Lat      float64 `json:"lat"`
	Long     float64 `json:"long"`
	Location string  `json:"location"`
}

type slabResponse struct {
	ID       string  `json:"id"`
	Lat      float64 `json:"lat"`
	Long     float64 `json:"long"`
	Location string  `json:"location"`
}

func (s *Server) handleCreateSlab(w http.ResponseWriter, r *http.Request) {
	var req slabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	created, err := s.deps.CreateSlabHandler.Handle(r.Context(), command.CreateSlabCommand{
		Coordinates: geo.Coordinates{Lat: req.Lat, Long: req.Long},
		Location:    lesson.LocationCode(req.Location),
	})
	if err != nil {
		if errors.Is(err, shared.ErrInvalidEntity) {
			writeJSONError(w, http.StatusBadRequest, "bad_request", "Location code is required")
			return
		}
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, slabResponse{
		ID:       created.ID,
		Lat:      created.Coordinates.Lat,
		Long:     created.Coordinates.Long,
		Location: string(created.Location),
	})
}

func (s *Server) handleGetSlab(w http.ResponseWriter, r *http.Request) {
	sl, err := s.deps.Slabs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, shared.ErrSlabNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Unknown check-in point")
			return
		}
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, slabResponse{
		ID:       sl.ID,
		Lat:      sl.Coordinates.Lat,
		Long:     sl.Coordinates.Long,
		Location: string(sl.Location),
	})
}

// serverError logs and reports an unexpected failure.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		logger.String("path", r.URL.Path),
		logger.String("request_id", getRequestID(r.Context())),
		logger.Err(err))
	writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
}
