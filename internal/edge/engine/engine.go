// Package engine runs the edge side of clipboard sync: it tracks the owners
// hosted on this node, notices local changes, uploads them in chunks and
// applies newer versions announced by the relay or found in a shared store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/blobcache"
	"github.com/dmitrijs2005/clipsync/internal/cryptox"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
	"github.com/dmitrijs2005/clipsync/internal/relay"
	"github.com/dmitrijs2005/clipsync/internal/syncstate"
	"github.com/dmitrijs2005/clipsync/internal/transfer"
	"github.com/google/uuid"
)

// Transport sends a sealed frame to the relay.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
}

// Source reads and writes an owner's live blob. It is the boundary to the
// codec that turns the clipboard object into bytes. An empty snapshot means
// there is nothing to sync.
type Source interface {
	Snapshot(ctx context.Context, owner string) ([]byte, error)
	Apply(ctx context.Context, owner string, data []byte) error
}

// Presence tells whether an owner is still here and allowed to sync.
type Presence interface {
	Online(owner string) bool
	CanSync(owner string) bool
}

// Notifier shows a short, non-blocking message to an owner.
type Notifier interface {
	Notify(ctx context.Context, owner, message string)
}

// Deps are the capabilities the engine runs on. Exactly one of Transport
// (relay mode) and Store (shared store mode) must be set.
type Deps struct {
	Transport Transport
	Store     relay.Coordinator
	Source    Source
	Presence  Presence
	Notifier  Notifier
	Clock     transfer.Clock
	Logger    logging.Logger
}

var ErrMode = errors.New("exactly one of transport and store must be set")

const (
	detectorWorkers = 4

	noticeTooLarge = "Clipboard content too large to sync"
	noticeFailed   = "Clipboard sync failed"
	noticeCanceled = "Clipboard sync canceled"

	// Downloads longer than this many chunks report progress every 10%.
	progressMinChunks = 10
)

type Engine struct {
	opts     transfer.Options
	limits   protocol.Limits
	sealer   *protocol.Sealer
	cache    *blobcache.Cache
	sessions *transfer.Manager
	states   *syncstate.Machine
	sender   *transfer.Sender

	transport Transport
	store     relay.Coordinator
	source    Source
	presence  Presence
	notifier  Notifier
	clock     transfer.Clock
	logger    logging.Logger
	metrics   metrics
	newID     func() string

	// DownloadRequests still waiting for their DownloadBegin.
	reqMu     sync.Mutex
	requested map[string]downloadRequest

	wg sync.WaitGroup
}

func New(opts transfer.Options, cipher *cryptox.MessageCipher, d Deps) (*Engine, error) {
	if (d.Transport == nil) == (d.Store == nil) {
		return nil, ErrMode
	}
	if d.Source == nil {
		return nil, errors.New("engine needs a source")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if d.Clock == nil {
		d.Clock = transfer.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = logging.Nop{}
	}
	if d.Presence == nil {
		d.Presence = everyone{}
	}
	if d.Notifier == nil {
		d.Notifier = LogNotifier{Logger: d.Logger}
	}

	e := &Engine{
		opts:      opts,
		limits:    opts.Limits(),
		sealer:    protocol.NewSealer(cipher),
		cache:     blobcache.New(),
		sessions:  transfer.NewManager(opts.ChunkSize, d.Clock),
		states:    syncstate.New(),
		sender:    transfer.NewSender(opts.ChunkSendDelay),
		transport: d.Transport,
		store:     d.Store,
		source:    d.Source,
		presence:  d.Presence,
		notifier:  d.Notifier,
		clock:     d.Clock,
		logger:    d.Logger.With("module", "engine"),
		metrics:   newMetrics(),
		newID:     uuid.NewString,
		requested: make(map[string]downloadRequest),
	}
	e.states.OnTransition = func(_ string, _, to syncstate.State) {
		e.metrics.Transitions.WithLabelValues(to.String()).Inc()
	}
	return e, nil
}

func (e *Engine) relayMode() bool { return e.transport != nil }

// Join starts tracking owner. In relay mode the relay answers with HashCheck
// or NoData; in store mode the next tick converges against the store.
func (e *Engine) Join(ctx context.Context, owner string) error {
	if !e.states.Track(owner) {
		return nil
	}
	e.logger.Info(ctx, "owner joined", "owner", owner)

	if e.relayMode() {
		return e.send(ctx, protocol.NewOwnerJoin(owner))
	}
	return nil
}

// Leave stops tracking owner and drops everything held for it. An in-flight
// transfer is canceled on the relay first.
func (e *Engine) Leave(ctx context.Context, owner string) error {
	st, _, ok := e.states.Current(owner)
	if !ok {
		return nil
	}

	var errs []error
	if e.relayMode() && busy(st) {
		errs = append(errs, e.send(ctx, protocol.NewCancel(owner)))
	}

	e.states.Untrack(owner, func() {
		e.sessions.RemoveOwner(owner)
		e.cache.Delete(owner)
	})
	e.logger.Info(ctx, "owner left", "owner", owner, "was", st)

	if e.relayMode() {
		errs = append(errs, e.send(ctx, protocol.NewOwnerLeave(owner)))
	}
	return errors.Join(errs...)
}

// Supersede is called when the owner makes a fresh local copy. Any transfer
// in flight is abandoned so the detector picks the new content up.
func (e *Engine) Supersede(ctx context.Context, owner string) error {
	prev, ok := e.states.Reset(owner, func() { e.sessions.RemoveOwner(owner) })
	if !ok || !busy(prev) {
		return nil
	}

	e.metrics.TransfersCanceled.Inc()
	e.logger.Info(ctx, "transfer superseded by a local change", "owner", owner, "was", prev)
	e.notifier.Notify(ctx, owner, noticeCanceled)

	if e.relayMode() {
		return e.send(ctx, protocol.NewCancel(owner))
	}
	return nil
}

// Connected re-announces every tracked owner after the relay stream opens.
func (e *Engine) Connected(ctx context.Context) {
	for _, owner := range e.states.Owners() {
		if err := e.send(ctx, protocol.NewOwnerJoin(owner)); err != nil {
			e.logger.Warn(ctx, "cannot announce owner", "owner", owner, "error", err)
		}
	}
}

// Disconnected aborts transfers that depended on the relay stream.
func (e *Engine) Disconnected(ctx context.Context) {
	for _, owner := range e.states.Owners() {
		st, gen, ok := e.states.Current(owner)
		if !ok || !busy(st) {
			continue
		}
		e.states.Advance(owner, st, gen, syncstate.Idle, func() {
			e.sessions.RemoveOwner(owner)
			if st == syncstate.Uploading {
				e.cache.Delete(owner)
			}
		})
		e.logger.Info(ctx, "transfer lost with the relay connection", "owner", owner, "was", st)
	}
}

// Run drives the change detector and the session sweep until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	detect := time.NewTicker(e.opts.DetectorInterval)
	defer detect.Stop()
	sweep := time.NewTicker(e.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			return nil
		case <-detect.C:
			e.Tick(ctx)
		case <-sweep.C:
			e.Sweep(ctx, e.clock.Now())
		}
	}
}

// Sweep drops download sessions that stopped receiving chunks and gives up on
// download requests the relay never answered. It returns how many it dropped.
func (e *Engine) Sweep(ctx context.Context, now time.Time) int {
	expired := e.sessions.SweepExpired(now, e.opts.SessionTimeout)
	for _, s := range expired {
		e.metrics.SessionsExpired.Inc()
		e.logger.Warn(ctx, "session expired", "owner", s.OwnerID, "session", s.ID,
			"received", s.Received, "total", s.TotalChunks)

		if e.states.Finish(s.OwnerID, syncstate.Downloading, s.Generation, nil) {
			e.notifier.Notify(ctx, s.OwnerID, noticeFailed)
		}
	}
	return len(expired) + e.expireRequests(ctx, now)
}

// Wait blocks until background uploads and applies have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) Owners() []string {
	return e.states.Owners()
}

// Status reports the sync state and cached blob of owner.
func (e *Engine) Status(owner string) (relay.OwnerStatus, bool) {
	st, _, ok := e.states.Current(owner)
	if !ok {
		return relay.OwnerStatus{}, false
	}
	out := relay.OwnerStatus{Owner: owner, State: st.String()}
	if rec, ok := e.cache.Get(owner); ok {
		out.Hash = rec.Hash
		out.SizeBytes = rec.SizeBytes
		out.CapturedAt = rec.CapturedAt
	}
	return out, true
}

func (e *Engine) send(ctx context.Context, msg protocol.Message) error {
	frame, err := e.sealer.Seal(msg)
	if err != nil {
		return fmt.Errorf("seal %s: %w", msg.Kind, err)
	}
	if err := e.transport.Send(ctx, frame); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	return nil
}

func busy(s syncstate.State) bool {
	return s == syncstate.Uploading || s == syncstate.Downloading
}

type everyone struct{}

func (everyone) Online(string) bool  { return true }
func (everyone) CanSync(string) bool { return true }

// LogNotifier writes notices to the log.
type LogNotifier struct {
	Logger logging.Logger
}

func (n LogNotifier) Notify(ctx context.Context, owner, message string) {
	n.Logger.Info(ctx, message, "owner", owner, "notice", true)
}
