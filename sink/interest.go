package sink

import (
	"sync/atomic"

	"github.com/ukhas/habitat-sub001/message"
)

// interest is a copy-on-write bitmask of message types, one bit per type.
// Readers load it atomically; writers replace it with a CAS loop.
type interest struct {
	bits atomic.Uint32
}

func maskOf(types []message.Type) uint32 {
	var m uint32
	for _, t := range types {
		m |= 1 << uint(t)
	}
	return m
}

func (i *interest) has(t message.Type) bool {
	if !t.Valid() {
		return false
	}
	return i.bits.Load()&(1<<uint(t)) != 0
}

func (i *interest) update(fn func(old uint32) uint32) {
	for {
		old := i.bits.Load()
		if i.bits.CompareAndSwap(old, fn(old)) {
			return
		}
	}
}

func (i *interest) types() []message.Type {
	bits := i.bits.Load()
	var out []message.Type
	for _, t := range message.AllTypes() {
		if bits&(1<<uint(t)) != 0 {
			out = append(out, t)
		}
	}
	return out
}
