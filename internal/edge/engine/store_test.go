package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/blobcache"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/syncstate"
	"github.com/dmitrijs2005/clipsync/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	hashes map[string]string
	pushes int
	err    error
}

func (s *memStore) Push(_ context.Context, owner string, data []byte, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.blobs == nil {
		s.blobs, s.hashes = map[string][]byte{}, map[string]string{}
	}
	s.blobs[owner], s.hashes[owner] = data, hash
	s.pushes++
	return nil
}

func (s *memStore) PullHash(_ context.Context, owner string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	h, ok := s.hashes[owner]
	return h, ok, nil
}

func (s *memStore) Pull(_ context.Context, owner string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	b, ok := s.blobs[owner]
	return b, ok, nil
}

func (s *memStore) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type storeRig struct {
	engine  *Engine
	store   *memStore
	source  *memSource
	notices *notices
}

func newStoreRig(t *testing.T, store *memStore, mutate func(*transfer.Options)) *storeRig {
	t.Helper()

	opts := transfer.DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	r := &storeRig{store: store, source: newMemSource(), notices: &notices{}}

	var err error
	r.engine, err = New(opts, nil, Deps{
		Store:    store,
		Source:   r.source,
		Notifier: r.notices,
		Logger:   logging.Nop{},
	})
	require.NoError(t, err)
	return r
}

func (r *storeRig) tick() {
	r.engine.Tick(context.Background())
	r.engine.Wait()
}

func (r *storeRig) state(t *testing.T, owner string) syncstate.State {
	t.Helper()
	st, _, ok := r.engine.states.Current(owner)
	require.True(t, ok)
	return st
}

func TestStoreMode_EmptyStoreThenPublish(t *testing.T) {
	store := &memStore{}
	r := newStoreRig(t, store, nil)
	r.source.set("alice", []byte("first"))
	require.NoError(t, r.engine.Join(context.Background(), "alice"))

	r.tick()
	assert.Equal(t, syncstate.Idle, r.state(t, "alice"))

	r.tick()
	data, ok, err := store.Pull(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("first"), data)
	assert.Equal(t, 1, store.pushes)

	r.tick()
	assert.Equal(t, 1, store.pushes, "unchanged content is not pushed again")
}

func TestStoreMode_ConvergeDownloadsOnJoin(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.Push(context.Background(), "alice", []byte("remote"), blobcache.HashOf([]byte("remote"))))
	r := newStoreRig(t, store, nil)
	r.source.set("alice", []byte("stale"))
	require.NoError(t, r.engine.Join(context.Background(), "alice"))

	r.tick()

	assert.Equal(t, []byte("remote"), r.source.get("alice"))
	assert.Equal(t, syncstate.Idle, r.state(t, "alice"))
	assert.Equal(t, blobcache.HashOf([]byte("remote")), r.engine.cache.Hash("alice"))
}

func TestStoreMode_ConvergeWithMatchingLocalContent(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.Push(context.Background(), "alice", []byte("same"), blobcache.HashOf([]byte("same"))))
	r := newStoreRig(t, store, nil)
	r.source.set("alice", []byte("same"))
	require.NoError(t, r.engine.Join(context.Background(), "alice"))

	r.tick()

	assert.Equal(t, syncstate.Idle, r.state(t, "alice"))
	assert.Zero(t, r.source.applied["alice"])
	assert.Equal(t, 1, store.pushes)
}

func TestStoreMode_ConvergeRetriesWhileStoreIsDown(t *testing.T) {
	store := &memStore{}
	store.fail(errors.New("connection refused"))
	r := newStoreRig(t, store, nil)
	require.NoError(t, r.engine.Join(context.Background(), "alice"))

	r.tick()
	assert.Equal(t, syncstate.Initializing, r.state(t, "alice"))

	store.fail(nil)
	r.tick()
	assert.Equal(t, syncstate.Idle, r.state(t, "alice"))
}

func TestStoreMode_PollPicksUpRemoteChange(t *testing.T) {
	store := &memStore{}
	r := newStoreRig(t, store, nil)
	r.source.set("alice", []byte("mine"))
	require.NoError(t, r.engine.Join(context.Background(), "alice"))
	r.tick()
	r.tick()

	// another node publishes
	require.NoError(t, store.Push(context.Background(), "alice", []byte("theirs"), blobcache.HashOf([]byte("theirs"))))
	r.tick()

	assert.Equal(t, []byte("theirs"), r.source.get("alice"))
	assert.Equal(t, blobcache.HashOf([]byte("theirs")), r.engine.cache.Hash("alice"))

	pushes := store.pushes
	r.tick()
	assert.Equal(t, pushes, store.pushes, "applied content is not published back")
}

func TestStoreMode_PushFailureRetries(t *testing.T) {
	store := &memStore{}
	r := newStoreRig(t, store, nil)
	require.NoError(t, r.engine.Join(context.Background(), "alice"))
	r.tick()

	r.source.set("alice", []byte("data"))
	store.fail(errors.New("throttled"))
	r.tick()
	assert.Equal(t, syncstate.Idle, r.state(t, "alice"))
	assert.Empty(t, r.engine.cache.Hash("alice"))
	assert.Equal(t, []string{"alice: " + noticeFailed}, r.notices.all())

	store.fail(nil)
	r.tick()
	assert.Equal(t, 1, store.pushes)
}

func TestStoreMode_RejectsMismatchedBlob(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.Push(context.Background(), "alice", []byte("payload"), "not-its-hash"))
	r := newStoreRig(t, store, func(o *transfer.Options) { o.HashPolicy = transfer.HashPolicyReject })
	require.NoError(t, r.engine.Join(context.Background(), "alice"))

	r.tick()

	assert.Equal(t, syncstate.Initializing, r.state(t, "alice"))
	assert.Nil(t, r.source.get("alice"))
	assert.Equal(t, []string{"alice: " + noticeFailed}, r.notices.all())
}

func TestStoreMode_Run(t *testing.T) {
	store := &memStore{}
	r := newStoreRig(t, store, func(o *transfer.Options) { o.DetectorInterval = time.Millisecond })
	r.source.set("alice", []byte("x"))
	require.NoError(t, r.engine.Join(context.Background(), "alice"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.engine.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, ok, _ := store.PullHash(context.Background(), "alice")
		return ok
	}, time.Second, time.Millisecond)
}
