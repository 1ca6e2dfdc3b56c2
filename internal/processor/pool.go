package processor

import "sync"

// slotPool bounds the number of in-flight agent invocations
type slotPool struct {
	capacity int
	inUse    int
	mu       sync.Mutex
	onChange func(inUse, capacity int) // called outside the lock
}

func newSlotPool(capacity int) *slotPool {
	return &slotPool{capacity: capacity}
}

// TryAcquire claims a slot. Returns false when all slots are taken.
func (p *slotPool) TryAcquire() bool {
	p.mu.Lock()
	if p.inUse >= p.capacity {
		p.mu.Unlock()
		return false
	}
	p.inUse++
	inUse, callback := p.inUse, p.onChange
	p.mu.Unlock()

	if callback != nil {
		callback(inUse, p.capacity)
	}
	return true
}

// Release returns a slot to the pool
func (p *slotPool) Release() {
	p.mu.Lock()
	if p.inUse > 0 {
		p.inUse--
	}
	inUse, callback := p.inUse, p.onChange
	p.mu.Unlock()

	if callback != nil {
		callback(inUse, p.capacity)
	}
}

// InUse returns the number of claimed slots
func (p *slotPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}
