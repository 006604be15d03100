package lukkarit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/pkg/circuitbreaker"
	"github.com/metka-hub/metka-attendance-hub/pkg/logger"
	"github.com/metka-hub/metka-attendance-hub/pkg/timeutil"
)

// Config contains configuration for the Lukkarit client.
type Config struct {
	// BaseURL is the calendar base URL.
	BaseURL string

	// Timeout bounds every HTTP call; the upstream has no SLA and a hung
	// scrape must not hang the attendance request behind it.
	Timeout time.Duration

	// UserAgent is sent on every request.
	UserAgent string

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 15 * time.Second,
	}
}

// Client fetches per-group timetables from the Lukkarit calendar.
// The client itself is stateless and safe for concurrent use: all scrape
// state (the session cookie that the basket hangs off) lives in a
// per-ingestion session, never in the client.
type Client struct {
	config  Config
	logger  *logger.Logger
	breaker *circuitbreaker.CircuitBreaker

	// now is injectable for tests; the year heuristic depends on it.
	now func() time.Time
}

// NewClient creates a new Lukkarit client.
func NewClient(config Config) *Client {
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.Component("lukkarit"))

	return &Client{
		config: config,
		logger: log,
		breaker: circuitbreaker.LukkaritBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		}),
		now: timeutil.Now,
	}
}

// session is one scrape conversation with the calendar. The basket endpoint
// stores the selected group against the session cookie, so the cookie jar
// and everything keyed on it is scoped to a single ingestion run.
type session struct {
	http *http.Client
}

// newSession creates a fresh session with its own cookie jar.
func (c *Client) newSession() (*session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("lukkarit: create cookie jar: %w", err)
	}
	return &session{
		http: &http.Client{
			Jar:     jar,
			Timeout: c.config.Timeout,
		},
	}, nil
}

// get performs one GET within the session and returns the response body.
func (s *session) get(ctx context.Context, rawURL, userAgent string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", shared.WrapError("lukkarit", "Request", shared.ErrTimeout, "calendar request timed out", err)
		}
		return "", shared.WrapError("lukkarit", "Request", shared.ErrServiceUnavailable, "calendar unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", shared.NewDomainError("lukkarit", "Request", shared.ErrServiceUnavailable,
			fmt.Sprintf("calendar responded with status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", shared.WrapError("lukkarit", "Request", shared.ErrServiceUnavailable, "read calendar response", err)
	}

	return string(body), nil
}

// FetchDay fetches and parses the lessons scheduled for the group on the
// given date. A date with no entries on the calendar is a normal outcome and
// yields an empty slice; unreachable upstream or unexpected markup is an
// error. The returned lessons carry no persisted identity yet.
func (c *Client) FetchDay(ctx context.Context, group lesson.GroupCode, day time.Time) ([]*lesson.Lesson, error) {
	var lessons []*lesson.Lesson

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		start := time.Now()

		s, err := c.newSession()
		if err != nil {
			return err
		}

		// Prime the session basket with the group; the print view only
		// renders what is in the basket.
		basketURL := fmt.Sprintf("%s/paivitaKori.php?toiminto=addGroup&code=%s",
			c.config.BaseURL, url.QueryEscape(group.String()))
		if _, err := s.get(ctx, basketURL, c.config.UserAgent); err != nil {
			return err
		}

		dayString := timeutil.FormatDateStr(day)
		printURL := fmt.Sprintf("%s/tulostus.php?date=%s", c.config.BaseURL, url.QueryEscape(dayString))
		body, err := s.get(ctx, printURL, c.config.UserAgent)
		if err != nil {
			return err
		}

		// The calendar omits years; resolve against the current year.
		lessons, err = ParsePrintView(body, day, c.now().Year())
		if err != nil {
			return err
		}

		c.logger.Debug("fetched day",
			logger.GroupCode(group.String()),
			logger.Day(dayString),
			logger.Int("lessons", len(lessons)),
			logger.Latency(time.Since(start)))

		return nil
	})
	if err != nil {
		return nil, err
	}

	return lessons, nil
}
