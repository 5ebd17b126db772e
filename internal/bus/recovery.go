package bus

import (
	"context"

	"github.com/anthropics/convergence-engine/contracts"
)

// replayPageSize bounds how many events one ReadSince call pulls during
// replay.
const replayPageSize = 512

// Replay streams the journal to apply in sequence order, starting after
// from, paging through the store. It returns the highest sequence seen so
// a restarted EventBus can resume the monotone counter past the journal
// (ResumeAfter). apply errors abort the replay at the failing event; the
// returned sequence then names the last successfully applied event, so a
// caller can fix and resume from there.
func Replay(ctx context.Context, store *EventStore, from contracts.Sequence, apply func(contracts.DomainEvent) error) (contracts.Sequence, error) {
	last := from
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		page, err := store.ReadSince(ctx, last, replayPageSize)
		if err != nil {
			return last, err
		}
		if len(page) == 0 {
			return last, nil
		}
		for _, event := range page {
			if err := apply(event); err != nil {
				return last, err
			}
			last = event.Sequence
		}
	}
}

// ResumeAfter advances the bus's sequence counter to seq if it is behind,
// so events published after a replayed restart continue the journal's
// monotone order instead of colliding with persisted sequences.
func (b *EventBus) ResumeAfter(seq contracts.Sequence) {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	if b.seq < seq {
		b.seq = seq
	}
}
