package collision

import (
	"sort"
	"time"
)

// ModelID identifies one model, normally the owning object's GUID.
type ModelID uint64

// InvalidHeight is returned by Height when no model lies below the point.
const InvalidHeight = -100000.0

type node struct {
	box         AABB
	left, right *node
	id          ModelID
}

func (n *node) leaf() bool { return n.left == nil }

// Tree is a bounding volume hierarchy over the models of one map. Inserts and
// removes are staged and applied by Update; the hierarchy is rebuilt once the
// rebalance interval has passed while dirty. Models added since the last
// rebuild are queried linearly until then.
type Tree struct {
	models map[ModelID]AABB
	root   *node
	loose  []ModelID

	stagedAdd    map[ModelID]AABB
	stagedRemove map[ModelID]struct{}

	dirty     bool
	elapsed   time.Duration
	rebalance time.Duration
}

func NewTree(rebalance time.Duration) *Tree {
	return &Tree{
		models:       make(map[ModelID]AABB),
		stagedAdd:    make(map[ModelID]AABB),
		stagedRemove: make(map[ModelID]struct{}),
		rebalance:    rebalance,
	}
}

// Insert stages a model. Re-inserting an id replaces its box.
func (t *Tree) Insert(id ModelID, box AABB) {
	delete(t.stagedRemove, id)
	t.stagedAdd[id] = box
}

// Remove stages the removal of a model.
func (t *Tree) Remove(id ModelID) {
	delete(t.stagedAdd, id)
	t.stagedRemove[id] = struct{}{}
}

// Contains reports whether id is queryable, i.e. applied by Update.
func (t *Tree) Contains(id ModelID) bool {
	_, ok := t.models[id]
	return ok
}

func (t *Tree) Size() int { return len(t.models) }

// Update applies staged changes and rebuilds the hierarchy when due.
func (t *Tree) Update(diff time.Duration) {
	for id := range t.stagedRemove {
		if _, ok := t.models[id]; ok {
			delete(t.models, id)
			t.dirty = true
		}
	}
	for id, box := range t.stagedAdd {
		t.models[id] = box
		t.loose = append(t.loose, id)
		t.dirty = true
	}
	clear(t.stagedRemove)
	clear(t.stagedAdd)

	t.elapsed += diff
	if t.dirty && t.elapsed >= t.rebalance {
		t.rebuild()
	}
}

func (t *Tree) rebuild() {
	ids := make([]ModelID, 0, len(t.models))
	for id := range t.models {
		ids = append(ids, id)
	}
	// map order is random; sort so equal inputs build equal trees
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	t.root = t.build(ids)
	t.loose = t.loose[:0]
	t.dirty = false
	t.elapsed = 0
}

func (t *Tree) build(ids []ModelID) *node {
	switch len(ids) {
	case 0:
		return nil
	case 1:
		return &node{box: t.models[ids[0]], id: ids[0]}
	}
	bounds := t.models[ids[0]]
	for _, id := range ids[1:] {
		bounds = bounds.Union(t.models[id])
	}
	ext := bounds.Max.Sub(bounds.Min)
	axis := 0
	if ext.Y > ext.X {
		axis = 1
	}
	if ext.Z > ext.axis(axis) {
		axis = 2
	}
	sort.Slice(ids, func(i, j int) bool {
		return t.models[ids[i]].Center().axis(axis) < t.models[ids[j]].Center().axis(axis)
	})
	mid := len(ids) / 2
	return &node{box: bounds, left: t.build(ids[:mid]), right: t.build(ids[mid:])}
}

// current reports whether a leaf still describes a live model.
func (t *Tree) current(n *node) bool {
	box, ok := t.models[n.id]
	return ok && box == n.box
}

// visit calls fn for every live model whose box passes test, stopping when fn
// returns false.
func (t *Tree) visit(test func(AABB) bool, fn func(ModelID, AABB) bool) {
	var walk func(n *node) bool
	walk = func(n *node) bool {
		if n == nil || !test(n.box) {
			return true
		}
		if n.leaf() {
			if !t.current(n) {
				return true
			}
			return fn(n.id, n.box)
		}
		return walk(n.left) && walk(n.right)
	}
	if !walk(t.root) {
		return
	}
	for _, id := range t.loose {
		box, ok := t.models[id]
		if !ok || !test(box) {
			continue
		}
		if !fn(id, box) {
			return
		}
	}
}

// IsInLineOfSight reports whether no model blocks the segment a-b.
func (t *Tree) IsInLineOfSight(a, b Vec3) bool {
	d := b.Sub(a)
	visible := true
	t.visit(func(box AABB) bool { return box.segmentHits(a, d) }, func(ModelID, AABB) bool {
		visible = false
		return false
	})
	return visible
}

// Height returns the highest model top under (x, y, z) within maxSearch, or
// InvalidHeight.
func (t *Tree) Height(x, y, z, maxSearch float32) float32 {
	best := float32(InvalidHeight)
	low := z - maxSearch
	t.visit(func(box AABB) bool {
		return box.ContainsXY(x, y) && box.Min.Z <= z && box.Max.Z >= low
	}, func(_ ModelID, box AABB) bool {
		if box.Max.Z <= z && box.Max.Z >= low && box.Max.Z > best {
			best = box.Max.Z
		}
		return true
	})
	return best
}
