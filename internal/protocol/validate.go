package protocol

import (
	"fmt"

	"github.com/dmitrijs2005/clipsync/internal/common"
)

// DefaultChunkSlack is how far a chunk may exceed the configured chunk size
// before it is rejected.
const DefaultChunkSlack = 1024

// Limits bound what a peer may declare. ChunkSize must match on every node.
type Limits struct {
	ChunkSize   int
	Slack       int
	MaxChunks   int
	MaxBlobSize int
}

// ChunkCount returns ceil(total/chunkSize); zero bytes need zero chunks.
func ChunkCount(total, chunkSize int) int {
	if total <= 0 || chunkSize <= 0 {
		return 0
	}
	return (total + chunkSize - 1) / chunkSize
}

// Validate applies the semantic checks that must pass before a message may
// create a session or add a chunk. Every failure wraps common.ErrValidation.
func Validate(m Message, l Limits) error {
	switch {
	case m.Kind.IsBegin():
		return validateBegin(m, l)
	case m.Kind.IsChunk():
		return validateChunk(m, l)
	case m.Kind.Known():
		if m.OwnerID == "" {
			return fmt.Errorf("%s without owner id: %w", m.Kind, common.ErrValidation)
		}
		if m.Kind == KindHashCheck && m.Hash == "" {
			return fmt.Errorf("%s without hash: %w", m.Kind, common.ErrValidation)
		}
		return nil
	default:
		return fmt.Errorf("%s: %w", m.Kind, ErrUnknownKind)
	}
}

func validateBegin(m Message, l Limits) error {
	if m.OwnerID == "" || m.SessionID == "" {
		return fmt.Errorf("%s without owner or session id: %w", m.Kind, common.ErrValidation)
	}
	if m.TotalBytes <= 0 {
		return fmt.Errorf("%s declares %d bytes: %w", m.Kind, m.TotalBytes, common.ErrValidation)
	}
	if l.MaxBlobSize > 0 && m.TotalBytes > l.MaxBlobSize {
		return fmt.Errorf("%s declares %d bytes, limit %d: %w", m.Kind, m.TotalBytes, l.MaxBlobSize, common.ErrValidation)
	}
	if l.MaxChunks > 0 && m.TotalChunks > l.MaxChunks {
		return fmt.Errorf("%s declares %d chunks, limit %d: %w", m.Kind, m.TotalChunks, l.MaxChunks, common.ErrValidation)
	}
	if want := ChunkCount(m.TotalBytes, l.ChunkSize); m.TotalChunks != want {
		return fmt.Errorf("%s declares %d chunks for %d bytes, want %d: %w", m.Kind, m.TotalChunks, m.TotalBytes, want, common.ErrValidation)
	}
	return nil
}

func validateChunk(m Message, l Limits) error {
	if m.SessionID == "" {
		return fmt.Errorf("%s without session id: %w", m.Kind, common.ErrValidation)
	}
	max := l.ChunkSize + l.Slack
	if n := len(m.Data); n <= 0 || n > max {
		return fmt.Errorf("%s length %d outside (0, %d]: %w", m.Kind, n, max, common.ErrValidation)
	}
	if m.Index < 0 || (l.MaxChunks > 0 && m.Index >= l.MaxChunks) {
		return fmt.Errorf("%s index %d out of range: %w", m.Kind, m.Index, common.ErrValidation)
	}
	return nil
}
