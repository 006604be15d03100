package command

import (
	"context"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/checkin"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/geo"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/slab"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/token"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/user"
)

// memStore is an in-memory repository bundle backing the handler tests. It
// implements Repos directly, so the same instance doubles as the pool-backed
// repositories and as the transactional view inside memUnitOfWork.
type memStore struct {
	users    map[string]*user.User
	tokens   map[string]*token.Token
	lessons  map[string]*lesson.Lesson
	slabs    map[string]*slab.Slab
	checkins map[string]*checkin.CheckIn

	// failNextCheckInCreate makes the next Create fail with
	// ErrCheckInExists, simulating a lost insert race.
	failNextCheckInCreate bool

	// missNextCheckInGet makes the next Get report no row even when one
	// exists, simulating a snapshot taken before a competing commit.
	missNextCheckInGet bool
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*user.User),
		tokens:   make(map[string]*token.Token),
		lessons:  make(map[string]*lesson.Lesson),
		slabs:    make(map[string]*slab.Slab),
		checkins: make(map[string]*checkin.CheckIn),
	}
}

func (s *memStore) Users() user.Repository       { return (*memUsers)(s) }
func (s *memStore) Tokens() token.Repository     { return (*memTokens)(s) }
func (s *memStore) Lessons() lesson.Repository   { return (*memLessons)(s) }
func (s *memStore) Slabs() slab.Repository       { return (*memSlabs)(s) }
func (s *memStore) CheckIns() checkin.Repository { return (*memCheckIns)(s) }

func checkInKey(userHash, lessonID string) string {
	return userHash + "/" + lessonID
}

// ─── users ───────────────────────────────────────────────────────────────────

type memUsers memStore

func (m *memUsers) Get(_ context.Context, hash string) (*user.User, error) {
	u, ok := m.users[hash]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	if _, ok := m.users[u.Hash]; ok {
		return shared.ErrUserAlreadyExists
	}
	cp := *u
	m.users[u.Hash] = &cp
	return nil
}

func (m *memUsers) UpdateGroup(_ context.Context, hash string, group lesson.GroupCode) error {
	u, ok := m.users[hash]
	if !ok {
		return shared.ErrUserNotFound
	}
	u.Group = group
	return nil
}

func (m *memUsers) ListGroups(_ context.Context) ([]lesson.GroupCode, error) {
	seen := make(map[lesson.GroupCode]bool)
	groups := make([]lesson.GroupCode, 0)
	for _, u := range m.users {
		if u.Group != "" && !seen[u.Group] {
			seen[u.Group] = true
			groups = append(groups, u.Group)
		}
	}
	return groups, nil
}

// ─── tokens ──────────────────────────────────────────────────────────────────

type memTokens memStore

func (m *memTokens) Create(_ context.Context, t *token.Token) error {
	cp := *t
	m.tokens[t.Value] = &cp
	return nil
}

func (m *memTokens) Validate(_ context.Context, value string, now time.Time) (string, error) {
	t, ok := m.tokens[value]
	if !ok {
		return "", shared.ErrTokenNotFound
	}
	if !now.Before(t.ExpiresAt) {
		return "", shared.ErrTokenExpired
	}
	return t.UserHash, nil
}

func (m *memTokens) Delete(_ context.Context, value string) error {
	delete(m.tokens, value)
	return nil
}

func (m *memTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for value, t := range m.tokens {
		if !now.Before(t.ExpiresAt) {
			delete(m.tokens, value)
			n++
		}
	}
	return n, nil
}

// ─── lessons ─────────────────────────────────────────────────────────────────

type memLessons memStore

func (m *memLessons) Ensure(_ context.Context, l *lesson.Lesson) (string, error) {
	id := l.Fingerprint()
	if _, ok := m.lessons[id]; !ok {
		cp := *l
		cp.ID = id
		m.lessons[id] = &cp
	}
	l.ID = id
	return id, nil
}

func (m *memLessons) GetByID(_ context.Context, id string) (*lesson.Lesson, error) {
	l, ok := m.lessons[id]
	if !ok {
		return nil, shared.ErrLessonNotFound
	}
	cp := *l
	return &cp, nil
}

// ─── slabs ───────────────────────────────────────────────────────────────────

type memSlabs memStore

func (m *memSlabs) Get(_ context.Context, id string) (*slab.Slab, error) {
	s, ok := m.slabs[id]
	if !ok {
		return nil, shared.ErrSlabNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSlabs) Create(_ context.Context, coordinates geo.Coordinates, location lesson.LocationCode) (*slab.Slab, error) {
	s := &slab.Slab{
		ID:          "slab-" + location.String(),
		Coordinates: coordinates,
		Location:    location,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	m.slabs[s.ID] = s
	return s, nil
}

// ─── check-ins ───────────────────────────────────────────────────────────────

type memCheckIns memStore

func (m *memCheckIns) Get(_ context.Context, userHash, lessonID string) (*checkin.CheckIn, error) {
	if m.missNextCheckInGet {
		m.missNextCheckInGet = false
		return nil, shared.ErrCheckInNotFound
	}
	c, ok := m.checkins[checkInKey(userHash, lessonID)]
	if !ok {
		return nil, shared.ErrCheckInNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCheckIns) Create(_ context.Context, c *checkin.CheckIn) error {
	if m.failNextCheckInCreate {
		m.failNextCheckInCreate = false
		return shared.ErrCheckInExists
	}
	key := checkInKey(c.UserHash, c.LessonID)
	if _, ok := m.checkins[key]; ok {
		return shared.ErrCheckInExists
	}
	cp := *c
	cp.ID = key
	m.checkins[key] = &cp
	return nil
}

func (m *memCheckIns) Update(_ context.Context, c *checkin.CheckIn) error {
	key := checkInKey(c.UserHash, c.LessonID)
	if _, ok := m.checkins[key]; !ok {
		return shared.ErrCheckInNotFound
	}
	cp := *c
	m.checkins[key] = &cp
	return nil
}

// ─── unit of work & schedules ────────────────────────────────────────────────

// memUnitOfWork passes the store straight through. Rollback semantics are
// not modelled; tests assert observable behavior, not isolation.
type memUnitOfWork struct {
	store *memStore
}

func (u *memUnitOfWork) WithinTx(_ context.Context, fn func(Repos) error) error {
	return fn(u.store)
}

// staticSchedules serves a fixed day of lessons for every group.
type staticSchedules struct {
	lessons []*lesson.Lesson
	err     error
}

func (s *staticSchedules) Lessons(_ context.Context, _ lesson.GroupCode, _ time.Time) ([]*lesson.Lesson, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.lessons, nil
}

// staticAuthenticator returns a fixed profile or error.
type staticAuthenticator struct {
	profile *Profile
	err     error
}

func (a *staticAuthenticator) Login(_ context.Context, _, _ string) (*Profile, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.profile, nil
}
