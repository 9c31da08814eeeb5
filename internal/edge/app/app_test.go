package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/edge/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	var c config.Config
	c.LoadDefaults()
	c.DataDir = filepath.Join(t.TempDir(), "clips")
	c.RelayAddr = "127.0.0.1:1"
	c.DebugAddr = "127.0.0.1:0"
	c.LogLevel = "error"
	c.Owners = []string{"alice"}
	c.SecretKey = "signing-key"
	return &c
}

func TestApp_RelayModeRunsWithoutRelay(t *testing.T) {
	a, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, a.client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, ok := a.engine.Status("alice")
		return ok && st.State == "INITIALIZING"
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("edge node did not stop")
	}
}

func TestApp_UnknownMode(t *testing.T) {
	c := testConfig(t)
	c.Mode = "carrier-pigeon"

	_, err := NewApp(context.Background(), c)
	assert.Error(t, err)
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	a, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
