package world

import "sync/atomic"

// GUIDGenerator hands out object GUIDs. Player GUIDs come from the character
// database; generated GUIDs start high to stay clear of them.
type GUIDGenerator struct {
	next atomic.Uint64
}

const generatedGUIDStart = 1 << 40

func NewGUIDGenerator() *GUIDGenerator {
	g := &GUIDGenerator{}
	g.next.Store(generatedGUIDStart)
	return g
}

// Next returns a unique GUID. Safe for concurrent use by map goroutines.
func (g *GUIDGenerator) Next() GUID {
	return GUID(g.next.Add(1))
}
