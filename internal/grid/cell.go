package grid

import "github.com/l1jgo/worldserver/internal/core/arena"

// Kind indexes the per-type object lists of a cell. The map translates object
// types into kinds; grid stays unaware of the object model.
type Kind uint8

const (
	KindCreature Kind = iota
	KindGameObject
	KindCorpse
	KindDynamicObject
	KindPlayer
	KindCount
)

// Cell holds the handles of every object currently positioned inside it, one
// dense list per kind. Objects remember their slot so removal is a swap with
// the last element.
type Cell struct {
	lists [KindCount][]arena.Handle
}

// Insert appends h to the kind's list and returns its slot.
func (c *Cell) Insert(kind Kind, h arena.Handle) int {
	c.lists[kind] = append(c.lists[kind], h)
	return len(c.lists[kind]) - 1
}

// Remove deletes the handle stored at slot. If another handle was moved into
// that slot it is returned with moved=true so the caller can update its slot.
// Removing a slot that does not hold want is rejected.
func (c *Cell) Remove(kind Kind, slot int, want arena.Handle) (movedHandle arena.Handle, moved bool, ok bool) {
	list := c.lists[kind]
	if slot < 0 || slot >= len(list) || list[slot] != want {
		return 0, false, false
	}
	last := len(list) - 1
	if slot != last {
		list[slot] = list[last]
		movedHandle, moved = list[slot], true
	}
	list[last] = 0
	c.lists[kind] = list[:last]
	return movedHandle, moved, true
}

func (c *Cell) Count(kind Kind) int { return len(c.lists[kind]) }

func (c *Cell) IsEmpty() bool {
	for k := range c.lists {
		if len(c.lists[k]) > 0 {
			return false
		}
	}
	return true
}

// Handles returns the kind's list. The slice is owned by the cell and must not
// be retained across mutations.
func (c *Cell) Handles(kind Kind) []arena.Handle { return c.lists[kind] }
