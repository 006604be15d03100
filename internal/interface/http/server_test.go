package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/metka-hub/metka-attendance-hub/internal/application/command"
	"github.com/metka-hub/metka-attendance-hub/internal/application/query"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/checkin"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/geo"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/slab"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/token"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/user"
)

// ─── in-memory backing store ─────────────────────────────────────────────────

type testStore struct {
	users    map[string]*user.User
	tokens   map[string]*token.Token
	lessons  map[string]*lesson.Lesson
	slabs    map[string]*slab.Slab
	checkins map[string]*checkin.CheckIn
}

func newTestStore() *testStore {
	return &testStore{
		users:    make(map[string]*user.User),
		tokens:   make(map[string]*token.Token),
		lessons:  make(map[string]*lesson.Lesson),
		slabs:    make(map[string]*slab.Slab),
		checkins: make(map[string]*checkin.CheckIn),
	}
}

func (s *testStore) Users() user.Repository       { return (*testUsers)(s) }
func (s *testStore) Tokens() token.Repository     { return (*testTokens)(s) }
func (s *testStore) Lessons() lesson.Repository   { return (*testLessons)(s) }
func (s *testStore) Slabs() slab.Repository       { return (*testSlabs)(s) }
func (s *testStore) CheckIns() checkin.Repository { return (*testCheckIns)(s) }

func (s *testStore) WithinTx(_ context.Context, fn func(command.Repos) error) error {
	return fn(s)
}

type testUsers testStore

func (t *testUsers) Get(_ context.Context, hash string) (*user.User, error) {
	u, ok := t.users[hash]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return u, nil
}

func (t *testUsers) Create(_ context.Context, u *user.User) error {
	t.users[u.Hash] = u
	return nil
}

func (t *testUsers) UpdateGroup(_ context.Context, hash string, group lesson.GroupCode) error {
	u, ok := t.users[hash]
	if !ok {
		return shared.ErrUserNotFound
	}
	u.Group = group
	return nil
}

func (t *testUsers) ListGroups(_ context.Context) ([]lesson.GroupCode, error) { return nil, nil }

type testTokens testStore

func (t *testTokens) Create(_ context.Context, tok *token.Token) error {
	t.tokens[tok.Value] = tok
	return nil
}

func (t *testTokens) Validate(_ context.Context, value string, now time.Time) (string, error) {
	tok, ok := t.tokens[value]
	if !ok {
		return "", shared.ErrTokenNotFound
	}
	if !now.Before(tok.ExpiresAt) {
		return "", shared.ErrTokenExpired
	}
	return tok.UserHash, nil
}

func (t *testTokens) Delete(_ context.Context, value string) error {
	delete(t.tokens, value)
	return nil
}

func (t *testTokens) DeleteExpired(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

type testLessons testStore

func (t *testLessons) Ensure(_ context.Context, l *lesson.Lesson) (string, error) {
	id := l.Fingerprint()
	l.ID = id
	t.lessons[id] = l
	return id, nil
}

func (t *testLessons) GetByID(_ context.Context, id string) (*lesson.Lesson, error) {
	l, ok := t.lessons[id]
	if !ok {
		return nil, shared.ErrLessonNotFound
	}
	return l, nil
}

type testSlabs testStore

func (t *testSlabs) Get(_ context.Context, id string) (*slab.Slab, error) {
	s, ok := t.slabs[id]
	if !ok {
		return nil, shared.ErrSlabNotFound
	}
	return s, nil
}

func (t *testSlabs) Create(_ context.Context, coordinates geo.Coordinates, location lesson.LocationCode) (*slab.Slab, error) {
	s := &slab.Slab{ID: "slab-1", Coordinates: coordinates, Location: location}
	t.slabs[s.ID] = s
	return s, nil
}

type testCheckIns testStore

func (t *testCheckIns) Get(_ context.Context, userHash, lessonID string) (*checkin.CheckIn, error) {
	c, ok := t.checkins[userHash+"/"+lessonID]
	if !ok {
		return nil, shared.ErrCheckInNotFound
	}
	return c, nil
}

func (t *testCheckIns) Create(_ context.Context, c *checkin.CheckIn) error {
	key := c.UserHash + "/" + c.LessonID
	if _, ok := t.checkins[key]; ok {
		return shared.ErrCheckInExists
	}
	t.checkins[key] = c
	return nil
}

func (t *testCheckIns) Update(_ context.Context, c *checkin.CheckIn) error {
	t.checkins[c.UserHash+"/"+c.LessonID] = c
	return nil
}

type testAuth struct {
	profile *command.Profile
	err     error
}

func (a *testAuth) Login(_ context.Context, _, _ string) (*command.Profile, error) {
	return a.profile, a.err
}

type testSchedules struct {
	lessons []*lesson.Lesson
}

func (s *testSchedules) Lessons(_ context.Context, _ lesson.GroupCode, _ time.Time) ([]*lesson.Lesson, error) {
	return s.lessons, nil
}

type testPinger struct{ err error }

func (p *testPinger) Ping(_ context.Context) error { return p.err }

// ─── fixture ─────────────────────────────────────────────────────────────────

type serverFixture struct {
	store     *testStore
	schedules *testSchedules
	auth      *testAuth
	server    *Server
}

func newServerFixture(t *testing.T, mutate func(*Config)) *serverFixture {
	t.Helper()

	store := newTestStore()
	schedules := &testSchedules{}
	auth := &testAuth{profile: &command.Profile{
		StudentNumber: "1504692",
		FirstName:     "Matti",
		LastName:      "Virtanen",
		Groups:        []string{"TXM15S1"},
	}}

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	deps := Dependencies{
		LoginHandler:       command.NewLoginHandler(auth, store, nil),
		LogoutHandler:      command.NewLogoutHandler(store.Tokens()),
		SelectGroupHandler: command.NewSelectGroupHandler(store.Users(), nil),
		AttendHandler:      command.NewAttendHandler(store, schedules, store.Users(), store.Slabs(), store.CheckIns(), nil),
		CreateSlabHandler:  command.NewCreateSlabHandler(store.Slabs(), nil),
		GetScheduleHandler: query.NewGetScheduleHandler(store.Users(), schedules, store.Lessons(), store.CheckIns(), nil),
		Tokens:             store.Tokens(),
		Users:              store.Users(),
		Slabs:              store.Slabs(),
		HealthCheckers:     map[string]Pinger{"postgres": &testPinger{}},
	}

	return &serverFixture{
		store:     store,
		schedules: schedules,
		auth:      auth,
		server:    NewServer(cfg, deps),
	}
}

// seedSession puts a user with a live token into the store.
func (f *serverFixture) seedSession(hash string, group lesson.GroupCode) string {
	f.store.users[hash] = &user.User{Hash: hash, Group: group}
	value := "token-" + hash
	f.store.tokens[value] = &token.Token{
		Value:     value,
		UserHash:  hash,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return value
}

func (f *serverFixture) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	f.server.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

// envelope mirrors JSONResponse for decoding in assertions.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

// dataOf returns the data payload decoded as a generic map.
func dataOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Data, "response has no data payload")
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &m))
	return m
}

// errCodeOf returns the error code of a failed response.
func errCodeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error, "response has no error payload")
	return env.Error.Code
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", dataOf(t, rec)["status"])
}

func TestHealthEndpointDegraded(t *testing.T) {
	f := newServerFixture(t, nil)
	f.server.deps.HealthCheckers["postgres"] = &testPinger{err: errors.New("connection refused")}

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", dataOf(t, rec)["status"])
}

func TestLoginEndpoint(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "matti",
		"password": "secret",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := dataOf(t, rec)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "TXM15S1", body["group"])
	assert.Equal(t, false, body["needs_group_selection"])
	assert.Equal(t, "Matti", body["first_name"])

	// The issued token works against an authenticated endpoint.
	check := f.do(t, http.MethodGet, "/api/v1/auth/check", body["token"].(string), nil)
	assert.Equal(t, http.StatusOK, check.Code)
	assert.Equal(t, true, dataOf(t, check)["has_group"])
}

func TestLoginEndpointBadCredentials(t *testing.T) {
	f := newServerFixture(t, nil)
	f.auth.profile = nil
	f.auth.err = shared.ErrBadCredentials

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "matti",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "bad_credentials", errCodeOf(t, rec))
}

func TestLoginEndpointUpstreamDown(t *testing.T) {
	f := newServerFixture(t, nil)
	f.auth.profile = nil
	f.auth.err = shared.ErrMetkaUnavailable

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "matti",
		"password": "secret",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream_unavailable", errCodeOf(t, rec))
}

func TestAuthenticatedEndpointsRejectMissingToken(t *testing.T) {
	f := newServerFixture(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/schedule"},
		{http.MethodPost, "/api/v1/attend"},
		{http.MethodPut, "/api/v1/group"},
		{http.MethodGet, "/api/v1/auth/check"},
	} {
		rec := f.do(t, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestAuthenticatedEndpointRejectsExpiredToken(t *testing.T) {
	f := newServerFixture(t, nil)
	f.store.tokens["stale"] = &token.Token{
		Value:     "stale",
		UserHash:  "u1",
		ExpiresAt: time.Now().Add(-time.Hour),
	}

	rec := f.do(t, http.MethodGet, "/api/v1/auth/check", "stale", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAttendEndpoint(t *testing.T) {
	f := newServerFixture(t, nil)
	bearer := f.seedSession("u1", "TXM15S1")

	spot := geo.Coordinates{Lat: 60.2241, Long: 24.7578}
	f.store.slabs["s1"] = &slab.Slab{ID: "s1", Coordinates: spot, Location: "P527"}

	now := time.Now()
	f.schedules.lessons = []*lesson.Lesson{{
		Start:     now.Add(-time.Hour),
		End:       now.Add(time.Hour),
		Locations: []lesson.LocationCode{"P527"},
		Name:      "Ohjelmoinnin perusteet",
		Groups:    []lesson.GroupCode{"TXM15S1"},
	}}

	rec := f.do(t, http.MethodPost, "/api/v1/attend", bearer, map[string]interface{}{
		"slab_id": "s1",
		"lat":     spot.Lat,
		"long":    spot.Long,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := dataOf(t, rec)
	assert.Equal(t, "checked_in", body["outcome"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "P527", body["location"])
	assert.NotNil(t, body["lesson"])
}

func TestAttendEndpointUnknownSlab(t *testing.T) {
	f := newServerFixture(t, nil)
	bearer := f.seedSession("u1", "TXM15S1")

	rec := f.do(t, http.MethodPost, "/api/v1/attend", bearer, map[string]interface{}{
		"slab_id": "ghost",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_slab", errCodeOf(t, rec))
}

func TestScheduleEndpoint(t *testing.T) {
	f := newServerFixture(t, nil)
	bearer := f.seedSession("u1", "TXM15S1")

	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f.schedules.lessons = []*lesson.Lesson{{
		Start:     start,
		End:       start.Add(2 * time.Hour),
		Locations: []lesson.LocationCode{"P527"},
		Name:      "Ohjelmoinnin perusteet",
		Groups:    []lesson.GroupCode{"TXM15S1"},
	}}

	rec := f.do(t, http.MethodGet, "/api/v1/schedule?date=2026-09-01", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	var lessons []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &lessons))
	require.Len(t, lessons, 1)
	assert.Equal(t, "Ohjelmoinnin perusteet", lessons[0]["name"])
	assert.NotEmpty(t, lessons[0]["id"])
}

func TestScheduleEndpointBadDate(t *testing.T) {
	f := newServerFixture(t, nil)
	bearer := f.seedSession("u1", "TXM15S1")

	rec := f.do(t, http.MethodGet, "/api/v1/schedule?date=tomorrow", bearer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectGroupEndpoint(t *testing.T) {
	f := newServerFixture(t, nil)
	bearer := f.seedSession("u1", "")

	rec := f.do(t, http.MethodPut, "/api/v1/group", bearer, map[string]string{"group": "TXM16S2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, lesson.GroupCode("TXM16S2"), f.store.users["u1"].Group)
}

func TestLogoutEndpoint(t *testing.T) {
	f := newServerFixture(t, nil)
	bearer := f.seedSession("u1", "TXM15S1")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/logout", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The token is dead now.
	rec = f.do(t, http.MethodGet, "/api/v1/auth/check", bearer, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminEndpointsDisabledWithoutKey(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/slabs", "", map[string]interface{}{
		"lat": 60.2, "long": 24.7, "location": "P527",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCreateAndGetSlab(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-key"), bcrypt.MinCost)
	require.NoError(t, err)

	f := newServerFixture(t, func(cfg *Config) {
		cfg.AdminAPIKeyHash = string(hash)
	})

	// Missing key
	rec := f.do(t, http.MethodPost, "/api/v1/slabs", "", map[string]interface{}{
		"lat": 60.2, "long": 24.7, "location": "P527",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong key
	req := httptest.NewRequest(http.MethodPost, "/api/v1/slabs", bytes.NewBufferString(`{"location":"P527"}`))
	req.Header.Set("X-API-Key", "wrong")
	wrong := httptest.NewRecorder()
	f.server.httpServer.Handler.ServeHTTP(wrong, req)
	assert.Equal(t, http.StatusForbidden, wrong.Code)

	// Right key
	req = httptest.NewRequest(http.MethodPost, "/api/v1/slabs", bytes.NewBufferString(`{"lat":60.2,"long":24.7,"location":"P527"}`))
	req.Header.Set("X-API-Key", "admin-key")
	created := httptest.NewRecorder()
	f.server.httpServer.Handler.ServeHTTP(created, req)
	require.Equal(t, http.StatusCreated, created.Code)

	var createdEnv envelope
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &createdEnv))
	var slabBody map[string]interface{}
	require.NoError(t, json.Unmarshal(createdEnv.Data, &slabBody))
	id := slabBody["id"].(string)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/slabs/"+id, nil)
	req.Header.Set("X-API-Key", "admin-key")
	got := httptest.NewRecorder()
	f.server.httpServer.Handler.ServeHTTP(got, req)
	assert.Equal(t, http.StatusOK, got.Code)
}

func TestRootEndpoint(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metka-attendance-hub", dataOf(t, rec)["service"])

	rec = f.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
