package maps

import (
	"sort"
	"sync"
)

// InstanceIDs allocates instance ids. Freed ids are reused before the
// counter advances, and an id is never handed out while it is in use.
type InstanceIDs struct {
	mu   sync.Mutex
	next uint32
	free []uint32
	used map[uint32]struct{}
}

// NewInstanceIDs returns an allocator with the given ids already in use,
// typically the ids of persisted instance saves.
func NewInstanceIDs(inUse []uint32) *InstanceIDs {
	a := &InstanceIDs{next: 1, used: make(map[uint32]struct{}, len(inUse))}
	for _, id := range inUse {
		a.Register(id)
	}
	return a
}

// Register marks id as used. It returns false if id is 0 or already used.
func (a *InstanceIDs) Register(id uint32) bool {
	if id == 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.used[id]; ok {
		return false
	}
	a.used[id] = struct{}{}
	if id >= a.next {
		a.next = id + 1
	}
	return true
}

// Generate returns an unused id.
func (a *InstanceIDs) Generate() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.free) > 0 {
		id := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		if _, ok := a.used[id]; !ok {
			a.used[id] = struct{}{}
			return id
		}
	}
	for {
		id := a.next
		a.next++
		if a.next == 0 {
			a.next = 1
		}
		if _, ok := a.used[id]; !ok && id != 0 {
			a.used[id] = struct{}{}
			return id
		}
	}
}

// Free returns id to the pool. Call only after the instance is torn down.
func (a *InstanceIDs) Free(id uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.used[id]; !ok {
		return
	}
	delete(a.used, id)
	a.free = append(a.free, id)
}

// InUse reports whether id is held by a live or saved instance.
func (a *InstanceIDs) InUse(id uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.used[id]
	return ok
}

// Live returns the ids in use, sorted.
func (a *InstanceIDs) Live() []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]uint32, 0, len(a.used))
	for id := range a.used {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
