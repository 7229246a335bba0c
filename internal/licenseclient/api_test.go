package licenseclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_errorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/licenses/recover", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"no prior session for this device"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL+"/", nil).Recover(context.Background(), "dev")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsRejected(err))
	assert.Equal(t, "no prior session for this device", err.Error())
}

func TestClient_nonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Lookup(context.Background(), "KEY", "dev")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.False(t, IsRejected(err))
}

func TestClient_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(url, nil).Release(context.Background(), "KEY", "dev")
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.False(t, IsNotFound(err))
}
