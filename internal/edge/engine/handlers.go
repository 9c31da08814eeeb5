package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/blobcache"
	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
	"github.com/dmitrijs2005/clipsync/internal/syncstate"
	"github.com/dmitrijs2005/clipsync/internal/transfer"
)

// HandleFrame decodes and dispatches one payload from the relay. A returned
// error concerns that payload only.
func (e *Engine) HandleFrame(ctx context.Context, payload []byte) error {
	msg, err := e.sealer.Open(payload)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownKind) {
			e.metrics.FramesDropped.WithLabelValues("unknown").Inc()
			e.logger.Debug(ctx, "ignoring unknown frame", "kind", msg.Kind)
			return nil
		}
		reason := "malformed"
		if errors.Is(err, common.ErrDecryption) {
			reason = "decrypt"
		}
		e.metrics.FramesDropped.WithLabelValues(reason).Inc()
		return fmt.Errorf("frame from relay: %w", err)
	}

	if err := protocol.Validate(msg, e.limits); err != nil {
		e.metrics.FramesDropped.WithLabelValues("invalid").Inc()
		return fmt.Errorf("frame from relay: %w", err)
	}
	e.metrics.FramesReceived.WithLabelValues(msg.Kind.String()).Inc()

	switch msg.Kind {
	case protocol.KindHashCheck:
		return e.hashCheck(ctx, msg.OwnerID, msg.Hash)
	case protocol.KindNoData:
		e.noData(ctx, msg.OwnerID)
	case protocol.KindDownloadBegin:
		e.beginDownload(ctx, msg)
	case protocol.KindDownloadChunk:
		return e.downloadChunk(ctx, msg)
	case protocol.KindCancel:
		e.cancel(ctx, msg.OwnerID)
	default:
		e.logger.Debug(ctx, "ignoring frame not meant for an edge node", "kind", msg.Kind)
	}
	return nil
}

func (e *Engine) hashCheck(ctx context.Context, owner, hash string) error {
	st, gen, ok := e.states.Current(owner)
	if !ok {
		e.logger.Debug(ctx, "hash check for an owner not hosted here", "owner", owner)
		return nil
	}

	if local := e.cache.Hash(owner); local != "" && local == hash {
		e.alreadyCurrent(ctx, owner, st, gen)
		return nil
	}
	if st == syncstate.Initializing && e.matchesLocal(ctx, owner, gen, hash) {
		return nil
	}

	switch st {
	case syncstate.Uploading:
		e.logger.Debug(ctx, "hash check during upload ignored", "owner", owner)
		return nil
	case syncstate.Downloading:
		if s, ok := e.sessions.Active(owner, transfer.Download); ok && s.ExpectedHash == hash {
			return nil
		}
	}

	gen, ok = e.states.Enter(owner, syncstate.Downloading,
		syncstate.Initializing, syncstate.Idle, syncstate.Downloading)
	if !ok {
		return nil
	}
	e.remember(owner, gen)

	e.logger.Debug(ctx, "requesting newer clipboard", "owner", owner, "hash", hash)
	if err := e.send(ctx, protocol.NewDownloadRequest(owner)); err != nil {
		e.states.Finish(owner, syncstate.Downloading, gen, nil)
		return err
	}
	return nil
}

// alreadyCurrent settles owner in IDLE when the relay reports the hash it
// already holds. A download still in flight is for older content and is
// dropped.
func (e *Engine) alreadyCurrent(ctx context.Context, owner string, st syncstate.State, gen uint64) {
	switch st {
	case syncstate.Initializing:
		e.states.Advance(owner, syncstate.Initializing, gen, syncstate.Idle, nil)
	case syncstate.Downloading:
		if _, ok := e.states.Advance(owner, syncstate.Downloading, gen, syncstate.Idle, func() {
			e.sessions.RemoveOwner(owner)
		}); ok {
			e.metrics.TransfersCanceled.Inc()
			e.logger.Debug(ctx, "stale download dropped", "owner", owner)
		}
	}
	e.logger.Debug(ctx, "clipboard already current", "owner", owner)
}

// matchesLocal compares the owner's local content with the relay's hash
// before anything was cached, so a restarted node does not download what it
// already has.
func (e *Engine) matchesLocal(ctx context.Context, owner string, gen uint64, hash string) bool {
	data, err := e.source.Snapshot(ctx, owner)
	if err != nil {
		e.logger.Warn(ctx, "cannot read clipboard", "owner", owner, "error", err)
		return false
	}
	if len(data) == 0 || blobcache.HashOf(data) != hash {
		return false
	}
	_, ok := e.states.Advance(owner, syncstate.Initializing, gen, syncstate.Idle, func() {
		e.cache.Set(owner, data, hash)
	})
	if ok {
		e.logger.Debug(ctx, "local clipboard matches the relay", "owner", owner)
	}
	return ok
}

type downloadRequest struct {
	gen uint64
	at  time.Time
}

func (e *Engine) remember(owner string, gen uint64) {
	e.reqMu.Lock()
	e.requested[owner] = downloadRequest{gen: gen, at: e.clock.Now()}
	e.reqMu.Unlock()
}

func (e *Engine) forget(owner string) {
	e.reqMu.Lock()
	delete(e.requested, owner)
	e.reqMu.Unlock()
}

// expireRequests returns owners to IDLE whose DownloadRequest got no
// DownloadBegin within the session timeout.
func (e *Engine) expireRequests(ctx context.Context, now time.Time) int {
	due := make(map[string]uint64)
	e.reqMu.Lock()
	for owner, req := range e.requested {
		switch {
		case !e.states.Is(owner, syncstate.Downloading, req.gen):
			delete(e.requested, owner)
		case now.Sub(req.at) > e.opts.SessionTimeout:
			due[owner] = req.gen
			delete(e.requested, owner)
		}
	}
	e.reqMu.Unlock()

	n := 0
	for owner, gen := range due {
		if _, ok := e.sessions.Active(owner, transfer.Download); ok {
			continue
		}
		if !e.states.Finish(owner, syncstate.Downloading, gen, func() { e.sessions.RemoveOwner(owner) }) {
			continue
		}
		n++
		e.metrics.DownloadsFailed.WithLabelValues("no_begin").Inc()
		e.logger.Warn(ctx, "relay never started the download", "owner", owner)
		e.notifier.Notify(ctx, owner, noticeFailed)
	}
	return n
}

// noData means the relay holds nothing for owner. Forgetting the cached
// record lets the detector publish local content on its next tick.
func (e *Engine) noData(ctx context.Context, owner string) {
	st, gen, ok := e.states.Current(owner)
	if !ok || st == syncstate.Uploading {
		return
	}
	e.states.Advance(owner, st, gen, syncstate.Idle, func() {
		e.sessions.RemoveOwner(owner)
		e.cache.Delete(owner)
	})
	e.logger.Debug(ctx, "relay has no clipboard", "owner", owner, "was", st)
}

func (e *Engine) beginDownload(ctx context.Context, msg protocol.Message) {
	owner := msg.OwnerID
	started := e.states.While(owner, syncstate.Downloading, func(gen uint64) {
		replaced := e.sessions.CreateSession(msg.SessionID, owner, transfer.Download,
			msg.TotalChunks, msg.TotalBytes, msg.Hash, transfer.WithGeneration(gen))
		if replaced != "" {
			e.logger.Debug(ctx, "download replaced an unfinished one", "owner", owner, "replaced", replaced)
		}
	})
	if !started {
		e.logger.Debug(ctx, "unexpected download begin", "owner", owner, "session", msg.SessionID)
		return
	}
	e.forget(owner)
	e.logger.Debug(ctx, "download started", "owner", owner, "session", msg.SessionID,
		"chunks", msg.TotalChunks, "bytes", msg.TotalBytes)
}

func (e *Engine) downloadChunk(ctx context.Context, msg protocol.Message) error {
	complete, err := e.sessions.AddChunk(msg.SessionID, msg.Index, msg.Data)
	if err != nil {
		return fmt.Errorf("download chunk: %w", err)
	}
	if !complete {
		e.progress(ctx, msg.SessionID)
		return nil
	}

	s, ok := e.sessions.Take(msg.SessionID)
	if !ok {
		return nil
	}
	return e.completeDownload(ctx, s)
}

func (e *Engine) progress(ctx context.Context, sid string) {
	s, ok := e.sessions.Get(sid)
	if !ok || s.TotalChunks <= progressMinChunks || s.Received == 0 {
		return
	}
	step := s.Received * 10 / s.TotalChunks
	if step == (s.Received-1)*10/s.TotalChunks {
		return
	}
	e.notifier.Notify(ctx, s.OwnerID, fmt.Sprintf("Receiving clipboard: %d%%", step*10))
}

func (e *Engine) completeDownload(ctx context.Context, s *transfer.Session) error {
	owner := s.OwnerID

	data, err := s.Assemble()
	if err != nil {
		e.failDownload(ctx, owner, s.Generation, "assembly")
		return fmt.Errorf("download %s: %w", s.ID, err)
	}

	hash := blobcache.HashOf(data)
	if s.ExpectedHash != "" && hash != s.ExpectedHash {
		if e.opts.HashPolicy == transfer.HashPolicyReject {
			e.failDownload(ctx, owner, s.Generation, "hash")
			return fmt.Errorf("download %s: got %s, declared %s: %w", s.ID, hash, s.ExpectedHash, common.ErrHashMismatch)
		}
		e.logger.Warn(ctx, "download hash mismatch, applying anyway", "owner", owner, "session", s.ID,
			"declared", s.ExpectedHash, "actual", hash)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.apply(ctx, owner, syncstate.Idle, s.Generation, data, hash)
	}()
	return nil
}

// apply writes data to the source and records it, moving owner from
// DOWNLOADING at gen to IDLE. If the write fails owner goes to onFail.
func (e *Engine) apply(ctx context.Context, owner string, onFail syncstate.State, gen uint64, data []byte, hash string) bool {
	if !e.states.Is(owner, syncstate.Downloading, gen) {
		return false
	}
	if err := e.source.Apply(ctx, owner, data); err != nil {
		e.logger.Error(ctx, "cannot apply clipboard", "owner", owner, "error", err)
		e.failDownloadTo(ctx, owner, gen, onFail, "apply")
		return false
	}

	applied := e.states.Finish(owner, syncstate.Downloading, gen, func() {
		e.cache.Set(owner, data, hash)
	})
	if !applied {
		e.logger.Debug(ctx, "download superseded before it was recorded", "owner", owner)
		return false
	}
	e.metrics.DownloadsApplied.Inc()
	e.logger.Info(ctx, "clipboard applied", "owner", owner, "bytes", len(data))
	return true
}

func (e *Engine) failDownload(ctx context.Context, owner string, gen uint64, reason string) {
	e.failDownloadTo(ctx, owner, gen, syncstate.Idle, reason)
}

func (e *Engine) failDownloadTo(ctx context.Context, owner string, gen uint64, to syncstate.State, reason string) {
	e.metrics.DownloadsFailed.WithLabelValues(reason).Inc()
	if _, ok := e.states.Advance(owner, syncstate.Downloading, gen, to, nil); ok {
		e.notifier.Notify(ctx, owner, noticeFailed)
	}
}

func (e *Engine) cancel(ctx context.Context, owner string) {
	prev, ok := e.states.Reset(owner, func() {
		e.sessions.RemoveOwner(owner)
		e.cache.Delete(owner)
	})
	if !ok {
		return
	}
	if busy(prev) {
		e.metrics.TransfersCanceled.Inc()
	}
	e.logger.Info(ctx, "transfer canceled by relay", "owner", owner, "was", prev)
}
