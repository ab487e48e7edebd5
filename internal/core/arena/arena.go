package arena

// Arena stores values in generational slots with a free list.
// Not safe for concurrent use; a Map owns one and mutates it from its update goroutine.
type Arena[T any] struct {
	values      []T
	generations []uint32
	live        []bool
	freeList    []uint32
	count       int
}

func New[T any](capacity int) *Arena[T] {
	return &Arena[T]{
		values:      make([]T, 0, capacity),
		generations: make([]uint32, 0, capacity),
		live:        make([]bool, 0, capacity),
		freeList:    make([]uint32, 0, capacity/4),
	}
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	a.count++
	if n := len(a.freeList); n > 0 {
		idx := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		a.values[idx] = v
		a.live[idx] = true
		return NewHandle(idx, a.generations[idx])
	}
	idx := uint32(len(a.values))
	a.values = append(a.values, v)
	a.generations = append(a.generations, 1)
	a.live = append(a.live, true)
	return NewHandle(idx, 1)
}

// Get resolves h. The second result is false for stale or zero handles.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	var zero T
	if !a.Alive(h) {
		return zero, false
	}
	return a.values[h.Index()], true
}

func (a *Arena[T]) Alive(h Handle) bool {
	idx := h.Index()
	if h.IsZero() || int(idx) >= len(a.values) {
		return false
	}
	return a.live[idx] && a.generations[idx] == h.Generation()
}

// Remove frees the slot of h. Removing a stale handle is a no-op and
// reports false.
func (a *Arena[T]) Remove(h Handle) bool {
	if !a.Alive(h) {
		return false
	}
	idx := h.Index()
	var zero T
	a.values[idx] = zero
	a.live[idx] = false
	a.generations[idx]++
	a.freeList = append(a.freeList, idx)
	a.count--
	return true
}

func (a *Arena[T]) Len() int { return a.count }

// Each calls fn for every live value in slot order.
func (a *Arena[T]) Each(fn func(Handle, T)) {
	for i, ok := range a.live {
		if ok {
			fn(NewHandle(uint32(i), a.generations[i]), a.values[i])
		}
	}
}
