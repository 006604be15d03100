package lukkarit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/pkg/timeutil"
)

func fixedNow() time.Time {
	return time.Date(2026, 9, 1, 9, 0, 0, 0, timeutil.HelsinkiTZ)
}

func TestFetchDay(t *testing.T) {
	var basketCalls, printCalls int
	var basketGroup, printDate string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/paivitaKori.php":
			basketCalls++
			basketGroup = r.URL.Query().Get("code")
			assert.Equal(t, "addGroup", r.URL.Query().Get("toiminto"))
			w.WriteHeader(http.StatusOK)
		case "/tulostus.php":
			printCalls++
			printDate = r.URL.Query().Get("date")
			_, _ = w.Write([]byte(printViewFixture))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client := NewClient(DefaultConfig(ts.URL))
	client.now = fixedNow

	lessons, err := client.FetchDay(context.Background(), "TXM15S1", timeutil.Date(2026, 9, 1))
	require.NoError(t, err)
	require.Len(t, lessons, 2)

	assert.Equal(t, 1, basketCalls, "the basket is primed once per fetch")
	assert.Equal(t, 1, printCalls)
	assert.Equal(t, "TXM15S1", basketGroup)
	assert.Equal(t, "2026-09-01", printDate)
	assert.Equal(t, "Ohjelmoinnin perusteet", lessons[0].Name)
}

func TestFetchDayEmptyCalendarDay(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tulostus.php" {
			_, _ = w.Write([]byte(printViewFixture))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(DefaultConfig(ts.URL))
	client.now = fixedNow

	lessons, err := client.FetchDay(context.Background(), "TXM15S1", timeutil.Date(2026, 9, 5))
	require.NoError(t, err)
	assert.Empty(t, lessons)
}

func TestFetchDayUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(DefaultConfig(ts.URL))
	client.now = fixedNow

	_, err := client.FetchDay(context.Background(), "TXM15S1", timeutil.Date(2026, 9, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestFetchDayGarbledMarkup(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tulostus.php" {
			_, _ = w.Write([]byte("<html>redesigned calendar</html>"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(DefaultConfig(ts.URL))
	client.now = fixedNow

	_, err := client.FetchDay(context.Background(), "TXM15S1", timeutil.Date(2026, 9, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}
