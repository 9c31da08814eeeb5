// Package transfer holds the chunk-reassembly state for in-flight uploads and
// downloads, splits blobs into wire-sized chunks and paces their sending.
package transfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
)

// HashPolicy decides what happens when assembled bytes do not hash to the
// digest declared in the Begin message.
type HashPolicy string

const (
	// HashPolicyWarn logs the mismatch and applies the data anyway.
	HashPolicyWarn HashPolicy = "warn"
	// HashPolicyReject discards the data and notifies the owner.
	HashPolicyReject HashPolicy = "reject"
)

// ParseHashPolicy accepts "warn" and "reject" in any case. Empty means warn.
func ParseHashPolicy(s string) (HashPolicy, error) {
	switch p := HashPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return HashPolicyWarn, nil
	case HashPolicyWarn, HashPolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown hash policy %q: %w", s, common.ErrValidation)
	}
}

const (
	DefaultChunkSize        = 30000
	DefaultSessionTimeout   = 30 * time.Second
	DefaultMaxBlobSize      = 50 << 20
	DefaultChunkSendDelay   = 5 * time.Millisecond
	DefaultDetectorInterval = time.Second
	DefaultSweepInterval    = 5 * time.Second
)

// Options are the transfer settings shared by the relay and edge nodes.
// ChunkSize must be identical on every node.
type Options struct {
	ChunkSize        int
	SessionTimeout   time.Duration
	MaxBlobSize      int
	MaxChunks        int // 0 derives the bound from MaxBlobSize
	ChunkSendDelay   time.Duration
	DetectorInterval time.Duration
	SweepInterval    time.Duration
	SharedSecret     string
	HashPolicy       HashPolicy
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:        DefaultChunkSize,
		SessionTimeout:   DefaultSessionTimeout,
		MaxBlobSize:      DefaultMaxBlobSize,
		ChunkSendDelay:   DefaultChunkSendDelay,
		DetectorInterval: DefaultDetectorInterval,
		SweepInterval:    DefaultSweepInterval,
		HashPolicy:       HashPolicyWarn,
	}
}

// Limits returns the bounds incoming messages are validated against.
func (o Options) Limits() protocol.Limits {
	maxChunks := o.MaxChunks
	if maxChunks <= 0 {
		maxChunks = protocol.ChunkCount(o.MaxBlobSize, o.ChunkSize)
	}
	return protocol.Limits{
		ChunkSize:   o.ChunkSize,
		Slack:       protocol.DefaultChunkSlack,
		MaxChunks:   maxChunks,
		MaxBlobSize: o.MaxBlobSize,
	}
}

// Validate rejects settings the engine cannot run with.
func (o Options) Validate() error {
	switch {
	case o.ChunkSize <= 0:
		return fmt.Errorf("chunk size %d: %w", o.ChunkSize, common.ErrValidation)
	case o.MaxBlobSize <= 0:
		return fmt.Errorf("max blob size %d: %w", o.MaxBlobSize, common.ErrValidation)
	case o.SessionTimeout <= 0:
		return fmt.Errorf("session timeout %s: %w", o.SessionTimeout, common.ErrValidation)
	case o.DetectorInterval <= 0 || o.SweepInterval <= 0:
		return fmt.Errorf("detector and sweep intervals must be positive: %w", common.ErrValidation)
	case o.ChunkSendDelay < 0:
		return fmt.Errorf("chunk send delay %s: %w", o.ChunkSendDelay, common.ErrValidation)
	}
	_, err := ParseHashPolicy(string(o.HashPolicy))
	return err
}

// Clock supplies timestamps for session bookkeeping.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
