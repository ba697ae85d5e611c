package utils

import (
	"github.com/sasha-s/go-deadlock"
)

// TopicBuffer is how many values a subscriber may fall behind before new
// values are dropped for it.
const TopicBuffer = 64

// Topic fans values out to subscribers. Publishing never blocks: a
// subscriber that stops reading misses values instead of stalling the
// publisher, which is usually a tick loop.
type Topic[T any] struct {
	subscribers map[chan T]struct{}
	mutex       deadlock.Mutex
}

func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{
		subscribers: make(map[chan T]struct{}),
	}
}

// Publish returns the number of subscribers that missed the value.
func (t *Topic[T]) Publish(value T) (dropped int) {
	t.mutex.Lock()
	for subscriber := range t.subscribers {
		select {
		case subscriber <- value:
		default:
			dropped++
		}
	}
	t.mutex.Unlock()
	return
}

type Subscriber[T any] struct {
	channel chan T
	topic   *Topic[T]
}

func (t *Topic[T]) Subscribe() *Subscriber[T] {
	channel := make(chan T, TopicBuffer)
	t.mutex.Lock()
	t.subscribers[channel] = struct{}{}
	t.mutex.Unlock()

	return &Subscriber[T]{channel, t}
}

func (t *Subscriber[T]) Recv() <-chan T {
	return t.channel
}

func (t *Subscriber[T]) Done() {
	topic := t.topic
	topic.mutex.Lock()
	delete(topic.subscribers, t.channel)
	topic.mutex.Unlock()
}
