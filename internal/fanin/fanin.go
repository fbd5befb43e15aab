// Package fanin combines many independent lookups into a single result, and keeps only the
// result belonging to the most recent input snapshot.
package fanin

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Resolver looks up the value for one key. Returning ok=false drops the key from the result;
// failures are handled (and logged) by the resolver itself.
type Resolver[K, V any] func(ctx context.Context, key K) (value V, ok bool)

// Join resolves every key concurrently and returns once all resolutions have settled. Each
// resolution writes only its own slot, so no accumulator is shared between goroutines.
// Results keep key order. limit bounds concurrent resolutions; zero means unbounded.
func Join[K, V any](ctx context.Context, keys []K, limit int, resolve Resolver[K, V]) []V {
	out := make([]V, 0, len(keys))
	if len(keys) == 0 {
		return out
	}

	slots := make([]V, len(keys))
	filled := make([]bool, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, key := range keys {
		g.Go(func() error {
			v, ok := resolve(gctx, key)
			if ok {
				slots[i] = v
				filled[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range slots {
		if filled[i] {
			out = append(out, slots[i])
		}
	}
	return out
}

type result[V any] struct {
	generation uint64
	values     []V
}

// Latest runs join for every snapshot received from in and publishes its result on the
// returned channel. A newer snapshot cancels the join still running for an older one, and
// the older result is discarded. The returned channel is closed when ctx is done, or after
// in is closed and the last join has been published.
func Latest[S, V any](ctx context.Context, in <-chan S, join func(ctx context.Context, snapshot S) []V) <-chan []V {
	out := make(chan []V)

	go func() {
		defer close(out)

		loopCtx, stop := context.WithCancel(ctx)
		defer stop()

		results := make(chan result[V])
		var (
			generation uint64
			cancelJoin context.CancelFunc = func() {}
			pending    bool
			input      = in
		)
		defer func() { cancelJoin() }()

		for {
			if input == nil && !pending {
				return
			}

			select {
			case <-loopCtx.Done():
				return

			case snapshot, ok := <-input:
				if !ok {
					input = nil
					continue
				}
				cancelJoin()
				generation++
				joinCtx, cancel := context.WithCancel(loopCtx)
				cancelJoin = cancel
				pending = true

				go func(gen uint64) {
					values := join(joinCtx, snapshot)
					select {
					case results <- result[V]{generation: gen, values: values}:
					case <-loopCtx.Done():
					}
				}(generation)

			case r := <-results:
				if r.generation != generation {
					continue
				}
				pending = false
				if loopCtx.Err() != nil {
					return
				}
				select {
				case out <- r.values:
				case <-loopCtx.Done():
					return
				}
			}
		}
	}()

	return out
}
