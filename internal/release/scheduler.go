// Package release returns blocked tokens to OPEN when the customer does not
// book within the grace window. A durable delay queue fires the release close
// to its due time and a periodic sweep over the tokens table catches
// anything the queue lost.
package release

import (
	"context"
	"time"

	"github.com/ramurama/populardoctor-webapi/internal/tokens"
)

// Scheduler arms releases.
type Scheduler struct {
	queue Queue
	grace time.Duration
}

func NewScheduler(queue Queue, grace time.Duration) *Scheduler {
	if queue == nil {
		panic("release: queue required")
	}
	if grace <= 0 {
		grace = time.Minute
	}
	return &Scheduler{queue: queue, grace: grace}
}

// Grace is the block lifetime.
func (s *Scheduler) Grace() time.Duration { return s.grace }

// Arm enqueues the release of ref at blockedAt + grace and returns that
// instant. The entry remembers blockedAt so it only ever releases that block.
func (s *Scheduler) Arm(ctx context.Context, ref tokens.Ref, blockedAt time.Time) (time.Time, error) {
	blockedAt = tokens.BlockInstant(blockedAt)
	due := blockedAt.Add(s.grace)
	err := s.queue.Push(ctx, Entry{TableID: ref.TableID, Number: ref.Number, BlockedAt: blockedAt}, due)
	if err != nil {
		return time.Time{}, err
	}
	return due, nil
}
