package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"golang.org/x/time/rate"
)

// SendFunc delivers one chunk.
type SendFunc func(ctx context.Context, index int, chunk []byte) error

// Guard is consulted before every chunk. A non-nil error stops the loop.
type Guard func() error

// Sender paces chunk delivery: one chunk, then a fixed pause. The pauses are
// the only suspension points and each one honours ctx.
type Sender struct {
	delay time.Duration
}

func NewSender(delay time.Duration) *Sender {
	return &Sender{delay: delay}
}

// Send delivers chunks in index order and returns how many went out. progress
// may be nil.
func (s *Sender) Send(ctx context.Context, chunks [][]byte, guard Guard, send SendFunc, progress func(sent, total int)) (int, error) {
	limit := rate.Inf
	if s.delay > 0 {
		limit = rate.Every(s.delay)
	}
	lim := rate.NewLimiter(limit, 1)

	for i, chunk := range chunks {
		if err := lim.Wait(ctx); err != nil {
			return i, fmt.Errorf("chunk %d: %w: %w", i, common.ErrCanceled, err)
		}
		if guard != nil {
			if err := guard(); err != nil {
				return i, err
			}
		}
		if err := send(ctx, i, chunk); err != nil {
			return i, fmt.Errorf("send chunk %d: %w", i, err)
		}
		if progress != nil {
			progress(i+1, len(chunks))
		}
	}

	return len(chunks), nil
}
