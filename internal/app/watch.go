package app

import (
	"context"

	"quizplay-service/internal/domain"
)

// relay turns a change subscription into a stream of derived values. The
// initial value is delivered first; every change is mapped through next and
// skipped when next reports false. Only the latest value is buffered, so a slow
// reader sees fresh state instead of a backlog.
func relay[T any](ctx context.Context, changes <-chan domain.Change, unsubscribe func(), initial T, next func(context.Context, domain.Change) (T, bool)) (<-chan T, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan T, 1)
	out <- initial

	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-changes:
				if !ok {
					return
				}
				value, ok := next(ctx, change)
				if !ok {
					continue
				}
				offerLatest(out, value)
			}
		}
	}()

	return out, cancel
}

// offerLatest replaces any unread value in ch with v. Only the relay goroutine sends on ch.
func offerLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}
