// Package collision indexes the collidable models of a map (gameobjects with
// a model size) for line-of-sight and height queries.
package collision

// Vec3 is a point in world space.
type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) axis(i int) float32 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max Vec3
}

// BoxAround builds the box centred on c with half extents e.
func BoxAround(c, e Vec3) AABB {
	return AABB{
		Min: Vec3{c.X - e.X, c.Y - e.Y, c.Z - e.Z},
		Max: Vec3{c.X + e.X, c.Y + e.Y, c.Z + e.Z},
	}
}

func (b AABB) Union(o AABB) AABB {
	return AABB{
		Min: Vec3{min(b.Min.X, o.Min.X), min(b.Min.Y, o.Min.Y), min(b.Min.Z, o.Min.Z)},
		Max: Vec3{max(b.Max.X, o.Max.X), max(b.Max.Y, o.Max.Y), max(b.Max.Z, o.Max.Z)},
	}
}

func (b AABB) Center() Vec3 {
	return Vec3{(b.Min.X + b.Max.X) / 2, (b.Min.Y + b.Max.Y) / 2, (b.Min.Z + b.Max.Z) / 2}
}

// ContainsXY reports whether (x, y) lies inside the box footprint.
func (b AABB) ContainsXY(x, y float32) bool {
	return x >= b.Min.X && x <= b.Max.X && y >= b.Min.Y && y <= b.Max.Y
}

// segmentHits reports whether the segment from o to o+d crosses the box
// strictly between its end points.
func (b AABB) segmentHits(o, d Vec3) bool {
	tmin, tmax := float32(0), float32(1)
	for i := 0; i < 3; i++ {
		oi, di := o.axis(i), d.axis(i)
		lo, hi := b.Min.axis(i), b.Max.axis(i)
		if di > -1e-6 && di < 1e-6 {
			if oi < lo || oi > hi {
				return false
			}
			continue
		}
		t1, t2 := (lo-oi)/di, (hi-oi)/di
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
		if tmin > tmax {
			return false
		}
	}
	return tmax > 0 && tmin < 1
}
