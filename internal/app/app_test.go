package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/anistream/internal/config"
	"github.com/alvarorichard/anistream/internal/tracking"
)

func TestAppResolvesThroughDirectScrape(t *testing.T) {
	t.Parallel()

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/animes/naruto/1":
			http.Redirect(w, r, "/watch/naruto/1", http.StatusFound)
		case "/watch/naruto/1":
			fmt.Fprint(w, `<video><source src="https://cdn1.example/x.m3u8"></video>
				<script>var file = "http:\/\/mirror\/y.mp4";</script>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer site.Close()

	cfg := config.Defaults()
	cfg.Sites.BaseURL = site.URL
	cfg.Store.Path = ""

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &tracking.MemoryStore{}, a.Store)

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stream?path=/animes/naruto/1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		OK         bool     `json:"ok"`
		StreamURL  string   `json:"streamUrl"`
		Source     string   `json:"source"`
		Rule       string   `json:"rule"`
		Candidates []string `json:"candidates"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.OK)
	assert.Equal(t, "http://mirror/y.mp4", body.StreamURL)
	assert.Equal(t, "direct", body.Source)
	assert.Equal(t, "mp4", body.Rule)
	assert.Len(t, body.Candidates, 2)
}

func TestNewServicesRejectsBadReferers(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Relay.Referers = []string{"broken"}
	_, err := NewServices(cfg)
	assert.Error(t, err)
}
