package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDisallowedIP(t *testing.T) {
	t.Parallel()

	assert.True(t, IsDisallowedIP("127.0.0.1"))
	assert.True(t, IsDisallowedIP("10.1.2.3"))
	assert.True(t, IsDisallowedIP("192.168.0.10"))
	assert.True(t, IsDisallowedIP("169.254.169.254"))
	assert.True(t, IsDisallowedIP("::1"))
	assert.True(t, IsDisallowedIP("not-an-ip"))
	assert.False(t, IsDisallowedIP("8.8.8.8"))
}

func TestMatchesHost(t *testing.T) {
	t.Parallel()

	hosts := []string{"blogger.com", "lightspeedst.net"}
	assert.True(t, MatchesHost("www.blogger.com", hosts))
	assert.True(t, MatchesHost("LIGHTSPEEDST.NET", hosts))
	assert.False(t, MatchesHost("notblogger.com", hosts))
}

func TestNewHTTPClientBlocksLoopback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	guarded, err := NewHTTPClient(ClientOptions{BlockPrivate: true})
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = guarded.Do(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDisallowedIP))

	open, err := NewHTTPClient(ClientOptions{})
	require.NoError(t, err)
	resp, err := open.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewHTTPClientRejectsBadProxy(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPClient(ClientOptions{Proxy: "ftp://proxy:21"})
	require.Error(t, err)
}
