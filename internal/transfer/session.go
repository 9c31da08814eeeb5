package transfer

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
)

// Direction tells which way the bytes of a session flow.
type Direction uint8

const (
	Upload Direction = iota + 1
	Download
)

func (d Direction) String() string {
	switch d {
	case Upload:
		return "upload"
	case Download:
		return "download"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Session is one in-flight transfer. Values handed out by Manager are
// snapshots; only Take yields a session that owns its chunks.
type Session struct {
	ID           string
	OwnerID      string
	Direction    Direction
	TotalChunks  int
	TotalBytes   int
	ExpectedHash string
	// Generation is the sync state generation the session was opened under.
	Generation   uint64
	CreatedAt    time.Time
	LastUpdateAt time.Time
	Received     int

	chunkSize int
	chunks    map[int][]byte
}

// SessionOption customizes a session at creation.
type SessionOption func(*Session)

// WithGeneration records the state machine generation the session belongs to.
func WithGeneration(gen uint64) SessionOption {
	return func(s *Session) { s.Generation = gen }
}

// Complete reports whether every index in [0, TotalChunks) is present.
func (s *Session) Complete() bool {
	if len(s.chunks) != s.TotalChunks {
		return false
	}
	for i := 0; i < s.TotalChunks; i++ {
		if _, ok := s.chunks[i]; !ok {
			return false
		}
	}
	return true
}

// Progress returns the received share in percent.
func (s *Session) Progress() int {
	if s.TotalChunks == 0 {
		return 0
	}
	return len(s.chunks) * 100 / s.TotalChunks
}

// Assemble copies chunk i to offset i*chunkSize of a TotalBytes-sized buffer.
// A missing chunk or a chunk of the wrong length fails with common.ErrAssembly.
func (s *Session) Assemble() ([]byte, error) {
	if s.TotalChunks <= 0 || s.chunkSize <= 0 {
		return nil, fmt.Errorf("session %s has no chunks: %w", s.ID, common.ErrAssembly)
	}

	buf := make([]byte, s.TotalBytes)
	last := s.TotalChunks - 1

	for i := 0; i <= last; i++ {
		chunk, ok := s.chunks[i]
		if !ok {
			return nil, fmt.Errorf("session %s missing chunk %d of %d: %w", s.ID, i, s.TotalChunks, common.ErrAssembly)
		}

		want := s.chunkSize
		if i == last {
			want = s.TotalBytes - last*s.chunkSize
		}
		if len(chunk) != want {
			return nil, fmt.Errorf("session %s chunk %d has %d bytes, want %d: %w", s.ID, i, len(chunk), want, common.ErrAssembly)
		}

		copy(buf[i*s.chunkSize:], chunk)
	}

	return buf, nil
}

func (s *Session) snapshot() Session {
	c := *s
	c.Received = len(s.chunks)
	c.chunks = nil
	return c
}
