package metka

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
)

// profilePageFixture is a trimmed "Omat tiedot" page with the anchors the
// scraper relies on.
const profilePageFixture = `<html><body><table>
<tr><td>metropolia.student: </td><td>1504692 </td></tr>
<tr><td>Sukunimi:</td><td>Virtanen</td></tr>
<tr><td>Kutsumanimi:</td><td>Matti</td></tr>
<tr><td>Hallinnollinen ryhmä:</td><td>TXM15S1<br>TXM16S2</td></tr>
</table></body></html>`

func TestLogin(t *testing.T) {
	var loginGets, loginPosts int

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/metka/login.jsf" && r.Method == http.MethodGet:
			loginGets++
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc123"})
			w.WriteHeader(http.StatusOK)

		case r.URL.Path == "/metka/login.jsf" && r.Method == http.MethodPost:
			loginPosts++
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "matti", r.PostForm.Get("j_username"))
			assert.Equal(t, "secret", r.PostForm.Get("j_password"))

			cookie, err := r.Cookie("JSESSIONID")
			require.NoError(t, err, "the session cookie must carry over")
			assert.Equal(t, "abc123", cookie.Value)
			w.WriteHeader(http.StatusOK)

		case r.URL.Path == "/metka/jsp/ui/start.jsf":
			_, _ = w.Write([]byte(profilePageFixture))

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client := NewClient(DefaultConfig(ts.URL))

	info, err := client.Login(context.Background(), "matti", "secret")
	require.NoError(t, err)

	assert.Equal(t, 1, loginGets)
	assert.Equal(t, 1, loginPosts)
	assert.Equal(t, "1504692", info.StudentNumber)
	assert.Equal(t, "Matti", info.FirstName)
	assert.Equal(t, "Virtanen", info.LastName)
	assert.Equal(t, []string{"TXM15S1", "TXM16S2"}, info.Groups)
}

func TestLoginBadCredentials(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte("<html>Bad credentials</html>"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(DefaultConfig(ts.URL))

	_, err := client.Login(context.Background(), "matti", "wrong")
	assert.ErrorIs(t, err, shared.ErrBadCredentials)
}

func TestLoginUnparseableProfile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metka/jsp/ui/start.jsf" {
			_, _ = w.Write([]byte("<html>redesigned portal</html>"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(DefaultConfig(ts.URL))

	_, err := client.Login(context.Background(), "matti", "secret")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}

func TestLoginPortalDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewClient(DefaultConfig(ts.URL))

	_, err := client.Login(context.Background(), "matti", "secret")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestParseProfileSingleGroup(t *testing.T) {
	body := `<td>metropolia.student: </td><td>1600001 </td>
<td>Sukunimi:</td><td>Korhonen</td>
<td>Kutsumanimi:</td><td>Anna</td>
<td>Hallinnollinen ryhmä:</td><td>TXM15S1</td>`

	info, err := parseProfile(body)
	require.NoError(t, err)
	assert.Equal(t, "1600001", info.StudentNumber)
	assert.Equal(t, []string{"TXM15S1"}, info.Groups)
}
