package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/relay/s3store"
	"github.com/dmitrijs2005/clipsync/internal/transfer"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoadConfig_UsesDefaultsWithoutArgs(t *testing.T) {
	c, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, ModeRelay, c.Mode)
	assert.Equal(t, "127.0.0.1:50051", c.RelayAddr)
	assert.Equal(t, "edge-1", c.NodeID)
	assert.Empty(t, c.Owners)
	assert.Equal(t, "clipboards", c.DataDir)
	assert.Equal(t, transfer.DefaultOptions(), c.Transfer)
	assert.Equal(t, "clipsync", c.S3.Bucket)
}

func TestLoadConfig_JSONThenFlags(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"mode":             "s3",
		"node_id":          "edge-file",
		"owners":           []string{"alice"},
		"s3_bucket":        "from-file",
		"s3_base_endpoint": "http://minio:9000",
		"sweep_interval":   "9s",
	})

	c, err := LoadConfig([]string{"-config", path, "-n", "edge-flag", "-o", "alice, bob,,carol", "-b", "from-flag", "-change-detector-interval", "250ms"})
	require.NoError(t, err)

	var want Config
	want.LoadDefaults()
	want.Mode = ModeS3
	want.NodeID = "edge-flag"
	want.Owners = []string{"alice", "bob", "carol"}
	want.S3 = s3store.Config{
		Endpoint:  "http://minio:9000",
		Region:    "us-east-1",
		AccessKey: "admin",
		SecretKey: "secretpassword",
		Bucket:    "from-flag",
	}
	want.Transfer.SweepInterval = 9 * time.Second
	want.Transfer.DetectorInterval = 250 * time.Millisecond
	assert.Empty(t, cmp.Diff(&want, c))
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig([]string{"-mode", "carrier-pigeon"})
	assert.ErrorIs(t, err, common.ErrValidation)

	path := writeTempJSON(t, map[string]any{"mode": "ftp"})
	_, err = LoadConfig([]string{"-c", path})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = LoadConfig([]string{"-n", ""})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = LoadConfig([]string{"-max-blob-size", "0"})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"-hash-mismatch", "ignore"})
	assert.ErrorIs(t, err, common.ErrValidation)

	// a valid mode flag still overrides the file
	path = writeTempJSON(t, map[string]any{"mode": "s3"})
	c, err := LoadConfig([]string{"-c", path, "-mode", "postgres"})
	require.NoError(t, err)
	assert.Equal(t, ModePostgres, c.Mode)
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"relay", "s3", "postgres"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}
	_, err := ParseMode("")
	assert.Error(t, err)
}
