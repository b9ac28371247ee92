package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/ukhas/habitat-sub001/message"
)

// inline runs Handle on the caller's goroutine. mu guards only the in-flight
// count and is never held while Handle runs, so a handler may push back into
// the router (and so into itself) without deadlocking.
type inline struct {
	mu       sync.Mutex
	idle     *sync.Cond
	inFlight int
	closed   bool
}

func newInline() *inline {
	in := &inline{}
	in.idle = sync.NewCond(&in.mu)
	return in
}

func (in *inline) push(s *Sink, m *message.Message) bool {
	if !s.Wants(m.Type()) {
		s.skipped.Add(1)
		return true
	}

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return false
	}
	in.inFlight++
	in.mu.Unlock()

	defer func() {
		in.mu.Lock()
		in.inFlight--
		if in.inFlight == 0 {
			in.idle.Broadcast()
		}
		in.mu.Unlock()
	}()

	s.deliver(m)
	return true
}

func (in *inline) flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		in.mu.Lock()
		defer in.mu.Unlock()
		in.idle.Broadcast()
	})
	defer stop()

	in.mu.Lock()
	defer in.mu.Unlock()
	for in.inFlight != 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		in.idle.Wait()
	}
	return nil
}

func (in *inline) shutdown() {
	in.mu.Lock()
	in.closed = true
	in.mu.Unlock()
	_ = in.flush(context.Background())
}

func (in *inline) depth() int { return 0 }

func (in *inline) describe() (string, bool) {
	if !in.mu.TryLock() {
		return "", false
	}
	defer in.mu.Unlock()
	return fmt.Sprintf("%d executing now", in.inFlight), true
}
