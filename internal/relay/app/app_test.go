package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/blobcache"
	"github.com/dmitrijs2005/clipsync/internal/debugapi"
	"github.com/dmitrijs2005/clipsync/internal/relay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp_RunStopsOnCancel(t *testing.T) {
	var c config.Config
	c.LoadDefaults()
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.DebugAddr = "127.0.0.1:0"
	c.LogLevel = "error"

	a, err := NewApp(&c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestApp_RunFailsOnBadAddress(t *testing.T) {
	var c config.Config
	c.LoadDefaults()
	c.EndpointAddrGRPC = "127.0.0.1:99999"
	c.DebugAddr = ""
	c.LogLevel = "error"

	a, err := NewApp(&c)
	require.NoError(t, err)

	require.Error(t, a.Run(context.Background()))
}

func TestApp_DebugClipboardGoesThroughHub(t *testing.T) {
	var c config.Config
	c.LoadDefaults()
	c.DebugAddr = "127.0.0.1:0"
	c.LogLevel = "error"

	a, err := NewApp(&c)
	require.NoError(t, err)
	h := a.debug.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/owners/alice/clipboard", strings.NewReader("seeded")))
	require.Equal(t, http.StatusNoContent, rec.Code)

	hash, ok, err := a.hub.PullHash(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, blobcache.HashOf([]byte("seeded")), hash)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners/alice/clipboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "seeded", rec.Body.String())
	assert.Equal(t, hash, rec.Header().Get(debugapi.HashHeader))
}
