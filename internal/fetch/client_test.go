package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
)

func TestClientDoGet(t *testing.T) {
	var gotHeaders http.Header
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotQuery = r.URL.RawQuery
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, zap.NewNop())
	body, err := c.Do(context.Background(), domain.PageRequestSpec{
		URL:    srv.URL + "/leaderboard",
		Method: http.MethodGet,
		Params: map[string]string{"page": "2", "filter": "overall"},
		Headers: map[string]string{
			"X-Requested-With": "XMLHttpRequest",
			"Cache-Control":    "no-cache",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "<html>ok</html>", string(body))
	require.Equal(t, "XMLHttpRequest", gotHeaders.Get("X-Requested-With"))
	require.Equal(t, "no-cache", gotHeaders.Get("Cache-Control"))
	require.Contains(t, gotQuery, "page=2")
	require.Contains(t, gotQuery, "filter=overall")
}

func TestClientDoPostForm(t *testing.T) {
	var gotToken, gotForm string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotToken = r.Header.Get("X-CSRF-Token")
		gotForm = r.PostForm.Get("authenticity_token")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, zap.NewNop())
	_, err := c.Do(context.Background(), domain.PageRequestSpec{
		URL:     srv.URL + "/leaderboard",
		Method:  http.MethodPost,
		Params:  map[string]string{"page": "2", "authenticity_token": "tok"},
		Headers: map[string]string{"X-CSRF-Token": "tok"},
	})
	require.NoError(t, err)
	require.Equal(t, "tok", gotToken)
	require.Equal(t, "tok", gotForm)
}

func TestClientDoNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, zap.NewNop())
	_, err := c.Do(context.Background(), domain.PageRequestSpec{
		URL:    srv.URL,
		Method: http.MethodGet,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}
