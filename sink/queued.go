package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/ukhas/habitat-sub001/message"
)

// queued owns an unbounded FIFO drained by one goroutine. A single cond
// covers both waits: the worker waits for items or close, flushers wait for
// the queue to be empty and the worker idle.
type queued struct {
	sink *Sink

	mu     sync.Mutex
	cond   *sync.Cond
	items  []*message.Message
	busy   bool
	closed bool
	done   chan struct{}
}

func newQueued(s *Sink) *queued {
	q := &queued{sink: s, done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queued) start() {
	go q.run()
}

func (q *queued) push(_ *Sink, m *message.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, m)
	q.cond.Broadcast()
	return true
}

func (q *queued) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		m := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.busy = true
		q.mu.Unlock()

		q.sink.deliver(m)

		q.mu.Lock()
		q.busy = false
		if len(q.items) == 0 {
			q.cond.Broadcast()
		}
		q.mu.Unlock()
	}
}

func (q *queued) flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) != 0 || q.busy {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}

// shutdown rejects new items, lets the worker drain what is already queued
// and waits for it to exit.
func (q *queued) shutdown() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}

func (q *queued) describe() (string, bool) {
	if !q.mu.TryLock() {
		return "", false
	}
	defer q.mu.Unlock()
	return fmt.Sprintf("%d queued", len(q.items)), true
}

func (q *queued) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
