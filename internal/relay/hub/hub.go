// Package hub is the broadcast relay backend. It terminates frames from edge
// nodes, reassembles uploads into its own blob cache, serves downloads and
// pushes HashCheck or NoData to whichever node hosts an owner.
package hub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/blobcache"
	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/cryptox"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
	"github.com/dmitrijs2005/clipsync/internal/relay"
	"github.com/dmitrijs2005/clipsync/internal/syncstate"
	"github.com/dmitrijs2005/clipsync/internal/transfer"
	"github.com/google/uuid"
)

// Transport delivers a sealed frame to one edge node.
type Transport interface {
	SendTo(ctx context.Context, nodeID string, frame []byte) error
}

var _ relay.Coordinator = (*Hub)(nil)

type Hub struct {
	opts      transfer.Options
	limits    protocol.Limits
	sealer    *protocol.Sealer
	cache     *blobcache.Cache
	sessions  *transfer.Manager
	states    *syncstate.Machine
	sender    *transfer.Sender
	transport Transport
	logger    logging.Logger
	metrics   metrics

	clock transfer.Clock
	newID func() string

	mu    sync.Mutex
	nodes map[string]map[string]struct{}
	hosts map[string]string

	wg sync.WaitGroup
}

func New(opts transfer.Options, cipher *cryptox.MessageCipher, t Transport, l logging.Logger) *Hub {
	clock := transfer.SystemClock{}
	return &Hub{
		opts:      opts,
		limits:    opts.Limits(),
		sealer:    protocol.NewSealer(cipher),
		cache:     blobcache.New(),
		sessions:  transfer.NewManager(opts.ChunkSize, clock),
		states:    syncstate.New(),
		sender:    transfer.NewSender(opts.ChunkSendDelay),
		transport: t,
		logger:    l.With("module", "hub"),
		metrics:   newMetrics(),
		clock:     clock,
		newID:     uuid.NewString,
		nodes:     make(map[string]map[string]struct{}),
		hosts:     make(map[string]string),
	}
}

// Register records a node with an open stream.
func (h *Hub) Register(node string) {
	h.mu.Lock()
	if _, ok := h.nodes[node]; !ok {
		h.nodes[node] = make(map[string]struct{})
	}
	h.metrics.ConnectedNodes.Set(float64(len(h.nodes)))
	h.mu.Unlock()
}

// Unregister detaches every owner the node hosted and forgets the node.
func (h *Hub) Unregister(ctx context.Context, node string) {
	h.mu.Lock()
	owners := make([]string, 0, len(h.nodes[node]))
	for o := range h.nodes[node] {
		owners = append(owners, o)
	}
	h.mu.Unlock()

	for _, o := range owners {
		h.Detach(ctx, node, o)
	}

	h.mu.Lock()
	delete(h.nodes, node)
	h.metrics.ConnectedNodes.Set(float64(len(h.nodes)))
	h.mu.Unlock()
}

// Attach makes node the host of owner and tells it what the relay holds.
func (h *Hub) Attach(ctx context.Context, node, owner string) error {
	h.mu.Lock()
	if prev, ok := h.hosts[owner]; ok && prev != node {
		delete(h.nodes[prev], owner)
	}
	h.hosts[owner] = node
	if h.nodes[node] == nil {
		h.nodes[node] = make(map[string]struct{})
	}
	h.nodes[node][owner] = struct{}{}
	h.metrics.HostedOwners.Set(float64(len(h.hosts)))
	h.mu.Unlock()

	if h.states.Track(owner) {
		h.states.Enter(owner, syncstate.Idle, syncstate.Initializing)
	} else {
		// the owner moved: whatever ran for the old host is void
		h.states.Reset(owner, func() { h.sessions.RemoveOwner(owner) })
	}

	h.logger.Info(ctx, "owner attached", "owner", owner, "node", node)
	return h.announce(ctx, node, owner)
}

// Detach drops owner if node still hosts it, discarding its sessions.
func (h *Hub) Detach(ctx context.Context, node, owner string) {
	h.mu.Lock()
	if h.hosts[owner] != node {
		h.mu.Unlock()
		return
	}
	delete(h.hosts, owner)
	delete(h.nodes[node], owner)
	h.metrics.HostedOwners.Set(float64(len(h.hosts)))
	h.mu.Unlock()

	var dropped []string
	h.states.Untrack(owner, func() { dropped = h.sessions.RemoveOwner(owner) })
	h.logger.Info(ctx, "owner detached", "owner", owner, "node", node, "dropped_sessions", len(dropped))
}

// HostOf returns the node currently hosting owner.
func (h *Hub) HostOf(owner string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.hosts[owner]
	return n, ok
}

// HandleFrame decodes and dispatches one payload received from node. Errors
// concern that payload only; the caller logs them and keeps the stream.
func (h *Hub) HandleFrame(ctx context.Context, node string, payload []byte) error {
	msg, err := h.sealer.Open(payload)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownKind) {
			h.metrics.FramesDropped.WithLabelValues("unknown").Inc()
			h.logger.Debug(ctx, "ignoring unknown frame", "node", node, "kind", msg.Kind)
			return nil
		}
		reason := "malformed"
		if errors.Is(err, common.ErrDecryption) {
			reason = "decrypt"
		}
		h.metrics.FramesDropped.WithLabelValues(reason).Inc()
		return fmt.Errorf("frame from %s: %w", node, err)
	}

	if err := protocol.Validate(msg, h.limits); err != nil {
		h.metrics.FramesDropped.WithLabelValues("invalid").Inc()
		return fmt.Errorf("frame from %s: %w", node, err)
	}
	h.metrics.FramesReceived.WithLabelValues(msg.Kind.String()).Inc()

	switch msg.Kind {
	case protocol.KindOwnerJoin:
		return h.Attach(ctx, node, msg.OwnerID)
	case protocol.KindOwnerLeave:
		h.Detach(ctx, node, msg.OwnerID)
	case protocol.KindUploadBegin:
		return h.beginUpload(ctx, node, msg)
	case protocol.KindUploadChunk:
		return h.uploadChunk(ctx, node, msg)
	case protocol.KindDownloadRequest:
		return h.serveDownload(ctx, node, msg.OwnerID)
	case protocol.KindCancel:
		h.cancel(ctx, msg.OwnerID)
	default:
		h.logger.Debug(ctx, "ignoring frame not meant for the relay", "node", node, "kind", msg.Kind)
	}
	return nil
}

func (h *Hub) beginUpload(ctx context.Context, node string, msg protocol.Message) error {
	owner := msg.OwnerID
	if host, ok := h.HostOf(owner); !ok || host != node {
		return fmt.Errorf("upload for %s from %s: %w", owner, node, common.ErrOwnerUnavailable)
	}

	gen, ok := h.states.Enter(owner, syncstate.Uploading)
	if !ok {
		return fmt.Errorf("upload for %s: %w", owner, common.ErrOwnerUnavailable)
	}

	replaced := h.sessions.CreateSession(msg.SessionID, owner, transfer.Upload,
		msg.TotalChunks, msg.TotalBytes, msg.Hash, transfer.WithGeneration(gen))
	if replaced != "" {
		h.logger.Info(ctx, "upload replaced an unfinished one", "owner", owner, "session", msg.SessionID, "replaced", replaced)
	}

	h.logger.Debug(ctx, "upload started", "owner", owner, "session", msg.SessionID,
		"chunks", msg.TotalChunks, "bytes", msg.TotalBytes)
	return nil
}

func (h *Hub) uploadChunk(ctx context.Context, node string, msg protocol.Message) error {
	complete, err := h.sessions.AddChunk(msg.SessionID, msg.Index, msg.Data)
	if err != nil {
		return fmt.Errorf("chunk from %s: %w", node, err)
	}
	if !complete {
		return nil
	}

	s, ok := h.sessions.Take(msg.SessionID)
	if !ok {
		return nil
	}
	return h.completeUpload(ctx, node, s)
}

func (h *Hub) completeUpload(ctx context.Context, node string, s *transfer.Session) error {
	owner := s.OwnerID

	data, err := s.Assemble()
	if err != nil {
		h.metrics.UploadsFailed.WithLabelValues("assembly").Inc()
		h.abortUpload(ctx, node, s)
		return fmt.Errorf("upload %s: %w", s.ID, err)
	}

	hash := blobcache.HashOf(data)
	if s.ExpectedHash != "" && hash != s.ExpectedHash {
		if h.opts.HashPolicy == transfer.HashPolicyReject {
			h.metrics.UploadsFailed.WithLabelValues("hash").Inc()
			h.abortUpload(ctx, node, s)
			return fmt.Errorf("upload %s: got %s, declared %s: %w", s.ID, hash, s.ExpectedHash, common.ErrHashMismatch)
		}
		h.logger.Warn(ctx, "upload hash mismatch, storing anyway", "owner", owner, "session", s.ID,
			"declared", s.ExpectedHash, "actual", hash)
	}

	stored := h.states.Finish(owner, syncstate.Uploading, s.Generation, func() {
		h.cache.Set(owner, data, hash)
	})
	if !stored {
		h.metrics.UploadsFailed.WithLabelValues("superseded").Inc()
		h.logger.Debug(ctx, "upload superseded before it was stored", "owner", owner, "session", s.ID)
		return nil
	}

	h.metrics.UploadsCompleted.Inc()
	h.metrics.BlobBytes.Observe(float64(len(data)))
	h.logger.Info(ctx, "upload stored", "owner", owner, "session", s.ID, "bytes", len(data))

	if host, ok := h.HostOf(owner); ok && host != node {
		return h.notify(ctx, host, protocol.NewHashCheck(owner, hash))
	}
	return nil
}

// abortUpload returns the owner to IDLE and tells the uploading node to
// forget what it sent.
func (h *Hub) abortUpload(ctx context.Context, node string, s *transfer.Session) {
	h.states.Finish(s.OwnerID, syncstate.Uploading, s.Generation, nil)
	if err := h.notify(ctx, node, protocol.NewCancel(s.OwnerID)); err != nil {
		h.logger.Warn(ctx, "cannot notify node of failed upload", "owner", s.OwnerID, "node", node, "error", err)
	}
}

func (h *Hub) serveDownload(ctx context.Context, node, owner string) error {
	rec, ok := h.cache.Get(owner)
	if !ok || rec.SizeBytes == 0 {
		return h.notify(ctx, node, protocol.NewNoData(owner))
	}

	gen, ok := h.states.Enter(owner, syncstate.Downloading, syncstate.Initializing, syncstate.Idle, syncstate.Downloading)
	if !ok {
		return fmt.Errorf("download for %s: %w", owner, common.ErrOwnerUnavailable)
	}

	chunks := transfer.Split(rec.Bytes, h.opts.ChunkSize)
	sid := h.newID()

	if err := h.notify(ctx, node, protocol.NewDownloadBegin(owner, sid, len(chunks), rec.SizeBytes, rec.Hash)); err != nil {
		h.states.Finish(owner, syncstate.Downloading, gen, nil)
		return err
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.sendChunks(ctx, node, owner, sid, gen, chunks)
	}()
	return nil
}

func (h *Hub) sendChunks(ctx context.Context, node, owner, sid string, gen uint64, chunks [][]byte) {
	guard := func() error {
		if !h.states.Is(owner, syncstate.Downloading, gen) {
			return fmt.Errorf("download %s: %w", sid, common.ErrCanceled)
		}
		if host, ok := h.HostOf(owner); !ok || host != node {
			return fmt.Errorf("download %s: %w", sid, common.ErrOwnerUnavailable)
		}
		return nil
	}
	send := func(ctx context.Context, i int, chunk []byte) error {
		return h.notify(ctx, node, protocol.NewDownloadChunk(sid, i, chunk))
	}

	sent, err := h.sender.Send(ctx, chunks, guard, send, nil)
	finished := h.states.Finish(owner, syncstate.Downloading, gen, nil)
	if err != nil {
		h.logger.Info(ctx, "download stopped", "owner", owner, "session", sid, "sent", sent, "total", len(chunks), "error", err)
		return
	}
	if finished {
		h.metrics.DownloadsServed.Inc()
	}
	h.logger.Debug(ctx, "download sent", "owner", owner, "session", sid, "chunks", sent)
}

func (h *Hub) cancel(ctx context.Context, owner string) {
	var dropped []string
	prev, ok := h.states.Reset(owner, func() { dropped = h.sessions.RemoveOwner(owner) })
	if ok {
		h.logger.Info(ctx, "transfer canceled", "owner", owner, "was", prev, "dropped_sessions", len(dropped))
	}
}

// Sweep removes sessions idle for longer than the session timeout and tells
// the hosting node its upload did not make it.
func (h *Hub) Sweep(ctx context.Context, now time.Time) int {
	expired := h.sessions.SweepExpired(now, h.opts.SessionTimeout)
	for _, s := range expired {
		h.metrics.SessionsExpired.Inc()
		h.logger.Warn(ctx, "session expired", "owner", s.OwnerID, "session", s.ID,
			"received", s.Received, "total", s.TotalChunks)

		if !h.states.Finish(s.OwnerID, syncstate.Uploading, s.Generation, nil) {
			continue
		}
		if host, ok := h.HostOf(s.OwnerID); ok {
			if err := h.notify(ctx, host, protocol.NewCancel(s.OwnerID)); err != nil {
				h.logger.Warn(ctx, "cannot notify node of expired upload", "owner", s.OwnerID, "error", err)
			}
		}
	}
	return len(expired)
}

// Run sweeps expired sessions until ctx is done, then waits for download
// loops to stop.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.wg.Wait()
			return nil
		case <-ticker.C:
			h.Sweep(ctx, h.clock.Now())
		}
	}
}

// Push stores data as the canonical blob and notifies the hosting node.
func (h *Hub) Push(ctx context.Context, owner string, data []byte, hash string) error {
	if hash == "" {
		hash = blobcache.HashOf(data)
	}
	h.cache.Set(owner, data, hash)

	if host, ok := h.HostOf(owner); ok {
		return h.notify(ctx, host, protocol.NewHashCheck(owner, hash))
	}
	return nil
}

func (h *Hub) PullHash(_ context.Context, owner string) (string, bool, error) {
	rec, ok := h.cache.Get(owner)
	return rec.Hash, ok, nil
}

func (h *Hub) Pull(_ context.Context, owner string) ([]byte, bool, error) {
	rec, ok := h.cache.Get(owner)
	return rec.Bytes, ok, nil
}

// Owners lists owners that are attached or have a stored blob.
func (h *Hub) Owners() []string {
	seen := make(map[string]struct{})
	for _, o := range h.cache.Owners() {
		seen[o] = struct{}{}
	}
	for _, o := range h.states.Owners() {
		seen[o] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for o := range seen {
		out = append(out, o)
	}
	slices.Sort(out)
	return out
}

// Status reports what the relay knows about owner.
func (h *Hub) Status(owner string) (relay.OwnerStatus, bool) {
	st := relay.OwnerStatus{Owner: owner}
	state, _, tracked := h.states.Current(owner)
	if tracked {
		st.State = state.String()
	}
	st.Node, _ = h.HostOf(owner)
	rec, cached := h.cache.Get(owner)
	if cached {
		st.Hash = rec.Hash
		st.SizeBytes = rec.SizeBytes
		st.CapturedAt = rec.CapturedAt
	}
	return st, tracked || cached
}

func (h *Hub) announce(ctx context.Context, node, owner string) error {
	rec, ok := h.cache.Get(owner)
	if !ok || rec.SizeBytes == 0 {
		return h.notify(ctx, node, protocol.NewNoData(owner))
	}
	return h.notify(ctx, node, protocol.NewHashCheck(owner, rec.Hash))
}

func (h *Hub) notify(ctx context.Context, node string, msg protocol.Message) error {
	frame, err := h.sealer.Seal(msg)
	if err != nil {
		return fmt.Errorf("seal %s: %w", msg.Kind, err)
	}
	if err := h.transport.SendTo(ctx, node, frame); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Kind, node, err)
	}
	h.metrics.FramesSent.WithLabelValues(msg.Kind.String()).Inc()
	return nil
}
