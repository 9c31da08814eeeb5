package filesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_SnapshotAndApply(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "clips"))
	require.NoError(t, err)
	ctx := context.Background()

	data, err := s.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, data, "no file means nothing to sync")

	require.NoError(t, s.Apply(ctx, "alice", []byte("hello")))
	data, err = s.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	raw, err := os.ReadFile(filepath.Join(s.Dir(), "alice.clip"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(raw))

	owners, err := s.Owners()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, owners)
}

func TestSource_RejectsPathOwners(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	for _, owner := range []string{"", "../x", "a/b", ".hidden"} {
		_, err := s.Snapshot(context.Background(), owner)
		assert.ErrorIs(t, err, common.ErrValidation, owner)
		assert.ErrorIs(t, s.Apply(context.Background(), owner, []byte("x")), common.ErrValidation, owner)
		assert.False(t, s.CanSync(owner), owner)
	}
}

func TestSource_NoSyncMarker(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	assert.True(t, s.Online("alice"))
	assert.True(t, s.CanSync("alice"))

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "alice.nosync"), nil, 0o600))
	assert.False(t, s.CanSync("alice"))
	assert.True(t, s.CanSync("bob"))
}
