package bus

import "sync"

const defaultBufferSize = 100

// Bus fans pipeline events out to subscribers. A nil *Bus is valid and drops
// everything, so components can run without observers.
type Bus struct {
	subscribers      map[uint64]chan Event
	nextSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[uint64]chan Event),
		done:        make(chan struct{}),
	}
}

// Close ends every subscription. Publishing after Close reports false.
func (b *Bus) Close() {
	if b == nil {
		return
	}

	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for id, ch := range b.subscribers {
			close(ch)
			delete(b.subscribers, id)
		}
		b.mu.Unlock()
	})
}
