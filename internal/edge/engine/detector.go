package engine

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/clipsync/internal/blobcache"
	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
	"github.com/dmitrijs2005/clipsync/internal/syncstate"
	"github.com/dmitrijs2005/clipsync/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// Tick runs one pass of the change detector. Snapshots are taken on a small
// worker pool and Tick returns once every owner has been looked at; the
// chunked uploads it starts keep running in the background.
func (e *Engine) Tick(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(detectorWorkers)

	for _, owner := range e.states.Owners() {
		st, gen, ok := e.states.Current(owner)
		if !ok || !e.presence.Online(owner) || !e.presence.CanSync(owner) {
			continue
		}

		switch {
		case st == syncstate.Idle:
			g.Go(func() error {
				e.checkOwner(ctx, owner, gen)
				return nil
			})
		case st == syncstate.Initializing && !e.relayMode():
			g.Go(func() error {
				e.converge(ctx, owner, gen)
				return nil
			})
		}
	}

	_ = g.Wait()
}

func (e *Engine) checkOwner(ctx context.Context, owner string, gen uint64) {
	data, err := e.source.Snapshot(ctx, owner)
	if err != nil {
		e.logger.Warn(ctx, "cannot read clipboard", "owner", owner, "error", err)
		return
	}

	if len(data) == 0 || e.cache.IsSameBytes(owner, data) {
		if !e.relayMode() {
			e.pollRemote(ctx, owner, gen, len(data) > 0)
		}
		return
	}

	hash := blobcache.HashOf(data)
	upGen, ok := e.states.Advance(owner, syncstate.Idle, gen, syncstate.Uploading, func() {
		e.cache.Set(owner, data, hash)
	})
	if !ok {
		return
	}

	if len(data) > e.opts.MaxBlobSize {
		e.states.Finish(owner, syncstate.Uploading, upGen, nil)
		e.metrics.UploadsFailed.WithLabelValues("too_large").Inc()
		e.logger.Warn(ctx, "clipboard too large to sync", "owner", owner, "bytes", len(data), "max", e.opts.MaxBlobSize)
		e.notifier.Notify(ctx, owner, noticeTooLarge)
		return
	}

	e.logger.Debug(ctx, "clipboard changed", "owner", owner, "hash", hash, "bytes", len(data))

	if !e.relayMode() {
		e.push(ctx, owner, upGen, data, hash)
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.upload(ctx, owner, upGen, data, hash)
	}()
}

func (e *Engine) upload(ctx context.Context, owner string, gen uint64, data []byte, hash string) {
	chunks := transfer.Split(data, e.opts.ChunkSize)
	sid := e.newID()

	if err := e.send(ctx, protocol.NewUploadBegin(owner, sid, len(chunks), len(data), hash)); err != nil {
		e.failUpload(ctx, owner, gen, "send", err)
		return
	}

	var gone bool
	guard := func() error {
		if !e.presence.Online(owner) || !e.presence.CanSync(owner) {
			gone = true
			return fmt.Errorf("upload %s: %w", sid, common.ErrOwnerUnavailable)
		}
		if !e.states.Is(owner, syncstate.Uploading, gen) {
			return fmt.Errorf("upload %s: %w", sid, common.ErrCanceled)
		}
		return nil
	}
	send := func(ctx context.Context, i int, chunk []byte) error {
		return e.send(ctx, protocol.NewUploadChunk(sid, i, chunk))
	}

	sent, err := e.sender.Send(ctx, chunks, guard, send, nil)
	if err != nil {
		if gone {
			if cerr := e.send(ctx, protocol.NewCancel(owner)); cerr != nil {
				e.logger.Debug(ctx, "cannot cancel upload on relay", "owner", owner, "error", cerr)
			}
		}
		e.logger.Info(ctx, "upload stopped", "owner", owner, "session", sid, "sent", sent, "total", len(chunks), "error", err)
		e.failUpload(ctx, owner, gen, "stopped", nil)
		return
	}

	if e.states.Finish(owner, syncstate.Uploading, gen, nil) {
		e.metrics.UploadsCompleted.Inc()
	}
	e.logger.Debug(ctx, "upload sent", "owner", owner, "session", sid, "chunks", sent)
}

// failUpload returns owner to IDLE and forgets the cached record so the
// detector tries the same content again.
func (e *Engine) failUpload(ctx context.Context, owner string, gen uint64, reason string, err error) {
	if !e.states.Finish(owner, syncstate.Uploading, gen, func() { e.cache.Delete(owner) }) {
		return
	}
	e.metrics.UploadsFailed.WithLabelValues(reason).Inc()
	if err != nil {
		e.logger.Warn(ctx, "upload failed", "owner", owner, "error", err)
		e.notifier.Notify(ctx, owner, noticeFailed)
	}
}

func (e *Engine) push(ctx context.Context, owner string, gen uint64, data []byte, hash string) {
	if err := e.store.Push(ctx, owner, data, hash); err != nil {
		e.failUpload(ctx, owner, gen, "store", err)
		return
	}
	if e.states.Finish(owner, syncstate.Uploading, gen, nil) {
		e.metrics.UploadsCompleted.Inc()
	}
	e.logger.Info(ctx, "clipboard stored", "owner", owner, "bytes", len(data))
}

// pollRemote compares the store's hash with the cached one and downloads on
// difference. A store that lost the blob gets it again on the next tick.
func (e *Engine) pollRemote(ctx context.Context, owner string, gen uint64, haveLocal bool) {
	remote, ok, err := e.store.PullHash(ctx, owner)
	if err != nil {
		e.logger.Debug(ctx, "cannot poll store", "owner", owner, "error", err)
		return
	}
	if !ok || remote == "" {
		if haveLocal {
			e.states.Advance(owner, syncstate.Idle, gen, syncstate.Idle, func() { e.cache.Delete(owner) })
		}
		return
	}
	if remote == e.cache.Hash(owner) {
		return
	}
	e.fetch(ctx, owner, syncstate.Idle, gen, remote)
}

// converge settles an INITIALIZING owner against the store. Errors leave the
// owner INITIALIZING so the next tick retries.
func (e *Engine) converge(ctx context.Context, owner string, gen uint64) {
	remote, ok, err := e.store.PullHash(ctx, owner)
	if err != nil {
		e.logger.Warn(ctx, "cannot reach store", "owner", owner, "error", err)
		return
	}
	if !ok || remote == "" {
		e.states.Advance(owner, syncstate.Initializing, gen, syncstate.Idle, nil)
		e.logger.Debug(ctx, "store has no clipboard", "owner", owner)
		return
	}

	data, err := e.source.Snapshot(ctx, owner)
	if err == nil && len(data) > 0 && blobcache.HashOf(data) == remote {
		e.states.Advance(owner, syncstate.Initializing, gen, syncstate.Idle, func() {
			e.cache.Set(owner, data, remote)
		})
		return
	}

	e.fetch(ctx, owner, syncstate.Initializing, gen, remote)
}

// fetch downloads owner's blob from the store while DOWNLOADING. On failure
// the owner goes back to from.
func (e *Engine) fetch(ctx context.Context, owner string, from syncstate.State, gen uint64, remote string) {
	dlGen, ok := e.states.Advance(owner, from, gen, syncstate.Downloading, nil)
	if !ok {
		return
	}

	data, ok, err := e.store.Pull(ctx, owner)
	if err != nil || !ok {
		e.logger.Warn(ctx, "cannot download clipboard", "owner", owner, "found", ok, "error", err)
		e.failDownloadTo(ctx, owner, dlGen, from, "store")
		return
	}

	hash := blobcache.HashOf(data)
	if hash != remote {
		if e.opts.HashPolicy == transfer.HashPolicyReject {
			e.logger.Warn(ctx, "downloaded clipboard does not match its hash", "owner", owner,
				"declared", remote, "actual", hash)
			e.failDownloadTo(ctx, owner, dlGen, from, "hash")
			return
		}
		e.logger.Warn(ctx, "download hash mismatch, applying anyway", "owner", owner,
			"declared", remote, "actual", hash)
	}

	e.apply(ctx, owner, from, dlGen, data, hash)
}
