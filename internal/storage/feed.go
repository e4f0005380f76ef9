package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ruleta-labs/spintrack/internal/roulette"
)

// changeFeed fans out change notifications to window-scoped subscribers. Each
// subscriber re-reads its full window on every hit, matching the
// deliver-the-whole-set contract of roulette.Store.Subscribe. Signals coalesce
// through a buffered channel, so a burst of writes yields at least one fresh
// delivery rather than one per write.
type changeFeed struct {
	mu          sync.Mutex
	subscribers map[int64]*feedSubscriber
	nextID      int64
}

type feedSubscriber struct {
	id     int64
	window roulette.TimeWindow
	signal chan struct{}
	done   chan struct{}
	stop   sync.Once
}

func newChangeFeed() *changeFeed {
	return &changeFeed{subscribers: make(map[int64]*feedSubscriber)}
}

// subscribe registers a window listener and primes it for an immediate first
// delivery. The query function is invoked from a dedicated goroutine so
// callers never block on slow readers.
func (f *changeFeed) subscribe(
	window roulette.TimeWindow,
	query func(ctx context.Context, window roulette.TimeWindow) ([]roulette.Result, error),
	onChange func([]roulette.Result),
	onError func(error),
) func() {
	f.mu.Lock()
	f.nextID++
	subscriber := &feedSubscriber{
		id:     f.nextID,
		window: window,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	f.subscribers[subscriber.id] = subscriber
	f.mu.Unlock()

	go func() {
		for {
			select {
			case <-subscriber.done:
				return
			case <-subscriber.signal:
				results, err := query(context.Background(), window)
				select {
				case <-subscriber.done:
					return
				default:
				}
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				if onChange != nil {
					onChange(results)
				}
			}
		}
	}()

	subscriber.signal <- struct{}{}

	return func() {
		subscriber.stop.Do(func() {
			close(subscriber.done)
			f.mu.Lock()
			delete(f.subscribers, subscriber.id)
			f.mu.Unlock()
		})
	}
}

// notify wakes every subscriber whose window covers the written timestamp.
func (f *changeFeed) notify(ts time.Time) {
	f.mu.Lock()
	hit := make([]*feedSubscriber, 0, len(f.subscribers))
	for _, subscriber := range f.subscribers {
		if subscriber.window.Contains(ts) {
			hit = append(hit, subscriber)
		}
	}
	f.mu.Unlock()

	for _, subscriber := range hit {
		select {
		case subscriber.signal <- struct{}{}:
		default:
		}
	}
}
