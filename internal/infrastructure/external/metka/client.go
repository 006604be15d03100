// Package metka implements the Metka portal login client.
// The portal has no API either: authentication means walking the JSF login
// form with a session cookie and scraping the profile page afterwards. Like
// the calendar client, all conversation state lives in a per-login session.
package metka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/pkg/logger"
)

// Profile anchors on the "Omat tiedot" page.
var (
	studentNumberRe = regexp.MustCompile(`metropolia\.student: </td><td>(.*?) `)
	lastNameRe      = regexp.MustCompile(`Sukunimi:</td><td>(.*?)</td>`)
	firstNameRe     = regexp.MustCompile(`Kutsumanimi:</td><td>(.*?)</td>`)
	groupListRe     = regexp.MustCompile(`Hallinnollinen ryhmä:</td><td>(.*?)</td>`)
)

// badCredentialsMarker appears in the login response on a failed login.
const badCredentialsMarker = "Bad credentials"

// StudentInfo is the profile data scraped from the portal.
type StudentInfo struct {
	// StudentNumber is the Metropolia student number. Callers hash it
	// before persisting anything.
	StudentNumber string

	FirstName string
	LastName  string

	// Groups are the administrative groups the portal lists for the
	// student. Usually one; several for students between programmes.
	Groups []string
}

// Config contains configuration for the Metka client.
type Config struct {
	// BaseURL is the portal base URL.
	BaseURL string

	// Timeout bounds every HTTP call.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 20 * time.Second,
	}
}

// Client authenticates students against the Metka portal.
type Client struct {
	config Config
	logger *logger.Logger
}

// NewClient creates a new Metka client.
func NewClient(config Config) *Client {
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		config: config,
		logger: log.With(logger.Component("metka")),
	}
}

// Login walks the portal login flow: load the login page to obtain a session
// cookie, post the credentials, then scrape the profile page of the now
// authenticated session. Returns shared.ErrBadCredentials when the portal
// rejects the credentials and shared.ErrMetkaMarkup when the profile page
// does not look like expected.
func (c *Client) Login(ctx context.Context, username, password string) (*StudentInfo, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("metka: create cookie jar: %w", err)
	}
	httpClient := &http.Client{
		Jar:     jar,
		Timeout: c.config.Timeout,
	}

	loginURL := c.config.BaseURL + "/metka/login.jsf"

	// Load the page first so we get a session cookie.
	if _, err := c.do(ctx, httpClient, http.MethodGet, loginURL, nil); err != nil {
		return nil, err
	}

	// Authenticate the session cookie.
	form := url.Values{
		"j_username":                  {username},
		"j_password":                  {password},
		"login_inc:_idJsp18:_idJsp23": {"Kirjaudu"},
		"login_inc:_idJsp18_SUBMIT":   {"1"},
	}
	body, err := c.do(ctx, httpClient, http.MethodPost, loginURL, form)
	if err != nil {
		return nil, err
	}
	if strings.Contains(body, badCredentialsMarker) {
		return nil, shared.ErrBadCredentials
	}

	// Load the "Omat tiedot" page of the authenticated session.
	profileURL := c.config.BaseURL + "/metka/jsp/ui/start.jsf"
	profileForm := url.Values{
		"_idJsp11_SUBMIT": {"1"},
		"_idJsp11:_idcl":  {"_idJsp11:_idJsp12"},
	}
	body, err = c.do(ctx, httpClient, http.MethodPost, profileURL, profileForm)
	if err != nil {
		return nil, err
	}

	info, err := parseProfile(body)
	if err != nil {
		c.logger.Warn("could not parse profile page", logger.Err(err))
		return nil, err
	}

	return info, nil
}

// do performs one HTTP call within the login session.
func (c *Client) do(ctx context.Context, client *http.Client, method, rawURL string, form url.Values) (string, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", shared.WrapError("metka", "Request", shared.ErrTimeout, "portal request timed out", err)
		}
		return "", shared.WrapError("metka", "Request", shared.ErrServiceUnavailable, "portal unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", shared.NewDomainError("metka", "Request", shared.ErrServiceUnavailable,
			fmt.Sprintf("portal responded with status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", shared.WrapError("metka", "Request", shared.ErrServiceUnavailable, "read portal response", err)
	}

	return string(body), nil
}

// parseProfile extracts the student info from the profile page markup.
func parseProfile(body string) (*StudentInfo, error) {
	number := studentNumberRe.FindStringSubmatch(body)
	if number == nil {
		return nil, shared.NewDomainError("metka", "Parse", shared.ErrInvalidFormat, "student number anchor not found")
	}

	lastName := lastNameRe.FindStringSubmatch(body)
	if lastName == nil {
		return nil, shared.NewDomainError("metka", "Parse", shared.ErrInvalidFormat, "surname anchor not found")
	}

	firstName := firstNameRe.FindStringSubmatch(body)
	if firstName == nil {
		return nil, shared.NewDomainError("metka", "Parse", shared.ErrInvalidFormat, "first name anchor not found")
	}

	groupCell := groupListRe.FindStringSubmatch(body)
	if groupCell == nil {
		return nil, shared.NewDomainError("metka", "Parse", shared.ErrInvalidFormat, "group list anchor not found")
	}

	groups := make([]string, 0)
	for _, g := range strings.Split(groupCell[1], "<br>") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}

	return &StudentInfo{
		StudentNumber: strings.TrimSpace(number[1]),
		FirstName:     strings.TrimSpace(firstName[1]),
		LastName:      strings.TrimSpace(lastName[1]),
		Groups:        groups,
	}, nil
}
