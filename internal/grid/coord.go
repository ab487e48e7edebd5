// Package grid holds the spatial subdivision of a map: 64x64 grids, each split
// into 8x8 cells, and the coordinate math that maps world positions onto them.
package grid

import "math"

const (
	MaxNumberOfGrids = 64
	SizeOfGrids      = 533.3333
	CenterGridID     = MaxNumberOfGrids / 2
	CenterGridOffset = SizeOfGrids / 2

	MaxNumberOfCells     = 8
	SizeOfGridCell       = SizeOfGrids / MaxNumberOfCells
	CenterGridCellID     = MaxNumberOfCells * MaxNumberOfGrids / 2
	CenterGridCellOffset = SizeOfGridCell / 2

	TotalNumberOfCellsPerMap = MaxNumberOfGrids * MaxNumberOfCells

	// MapResolution is the number of height samples per grid side (V8 array).
	MapResolution = 128

	MapSize     = SizeOfGrids * MaxNumberOfGrids
	MapHalfSize = MapSize / 2
)

// GridCoord addresses one grid inside a map.
type GridCoord struct {
	X, Y uint32
}

// IsValid reports whether the coordinate falls inside the 64x64 grid array.
func (c GridCoord) IsValid() bool {
	return c.X < MaxNumberOfGrids && c.Y < MaxNumberOfGrids
}

// ID packs the coordinate into a single key.
func (c GridCoord) ID() uint32 {
	return c.Y*MaxNumberOfGrids + c.X
}

// TileX returns the terrain tile column for this grid. Tile files are indexed
// in the opposite direction of grid coordinates.
func (c GridCoord) TileX() uint32 { return MaxNumberOfGrids - 1 - c.X }
func (c GridCoord) TileY() uint32 { return MaxNumberOfGrids - 1 - c.Y }

// CellCoord addresses one cell inside a map (512x512).
type CellCoord struct {
	X, Y uint32
}

func (c CellCoord) IsValid() bool {
	return c.X < TotalNumberOfCellsPerMap && c.Y < TotalNumberOfCellsPerMap
}

func (c CellCoord) ID() uint32 {
	return c.Y*TotalNumberOfCellsPerMap + c.X
}

// Grid returns the grid holding this cell.
func (c CellCoord) Grid() GridCoord {
	return GridCoord{X: c.X / MaxNumberOfCells, Y: c.Y / MaxNumberOfCells}
}

// InGrid returns the cell offset inside its grid (0..7).
func (c CellCoord) InGrid() (uint32, uint32) {
	return c.X % MaxNumberOfCells, c.Y % MaxNumberOfCells
}

// normalize clamps an out-of-range coordinate to the map edge.
func (c CellCoord) normalize() CellCoord {
	return CellCoord{X: clampCell(c.X), Y: clampCell(c.Y)}
}

func clampCell(v uint32) uint32 {
	// Negative results wrap to huge values; those belong to the low edge.
	if v >= TotalNumberOfCellsPerMap {
		if v > math.MaxUint32/2 {
			return 0
		}
		return TotalNumberOfCellsPerMap - 1
	}
	return v
}

// compute floors rather than truncates so positions below the map land on a
// negative index, which wraps to an invalid coordinate.
func compute(x, y float32, centerOffset, size float64, centerVal int) (uint32, uint32) {
	xOffset := (float64(x) - centerOffset) / size
	yOffset := (float64(y) - centerOffset) / size
	xVal := int(math.Floor(xOffset + float64(centerVal) + 0.5))
	yVal := int(math.Floor(yOffset + float64(centerVal) + 0.5))
	return uint32(xVal), uint32(yVal)
}

// ComputeGridCoord returns the grid containing world position (x, y).
func ComputeGridCoord(x, y float32) GridCoord {
	gx, gy := compute(x, y, CenterGridOffset, SizeOfGrids, CenterGridID)
	return GridCoord{X: gx, Y: gy}
}

// ComputeCellCoord returns the cell containing world position (x, y).
// The result is invalid for positions outside the map.
func ComputeCellCoord(x, y float32) CellCoord {
	cx, cy := compute(x, y, CenterGridCellOffset, SizeOfGridCell, CenterGridCellID)
	return CellCoord{X: cx, Y: cy}
}

// IsValidMapCoord reports whether (x, y) lies inside the playable map square.
func IsValidMapCoord(x, y float32) bool {
	if math.IsNaN(float64(x)) || math.IsNaN(float64(y)) || math.IsInf(float64(x), 0) || math.IsInf(float64(y), 0) {
		return false
	}
	return math.Abs(float64(x)) <= MapHalfSize-0.5 && math.Abs(float64(y)) <= MapHalfSize-0.5
}

// CellArea is an inclusive rectangle of cells.
type CellArea struct {
	Low, High CellCoord
}

// CalculateCellArea returns the cells covered by a square of half-side radius
// around (x, y), clamped to the map.
func CalculateCellArea(x, y, radius float32) CellArea {
	if radius <= 0 {
		c := ComputeCellCoord(x, y).normalize()
		return CellArea{Low: c, High: c}
	}
	return CellArea{
		Low:  ComputeCellCoord(x-radius, y-radius).normalize(),
		High: ComputeCellCoord(x+radius, y+radius).normalize(),
	}
}

// Contains reports whether c lies inside the area.
func (a CellArea) Contains(c CellCoord) bool {
	return c.X >= a.Low.X && c.X <= a.High.X && c.Y >= a.Low.Y && c.Y <= a.High.Y
}

// Each visits every cell of the area, row by row.
func (a CellArea) Each(fn func(CellCoord)) {
	for x := a.Low.X; x <= a.High.X; x++ {
		for y := a.Low.Y; y <= a.High.Y; y++ {
			fn(CellCoord{X: x, Y: y})
		}
	}
}

// GridBounds returns the cell area covered by grid g, widened by extra cells.
func GridBounds(g GridCoord, extra uint32) CellArea {
	lowX := g.X * MaxNumberOfCells
	lowY := g.Y * MaxNumberOfCells
	highX := lowX + MaxNumberOfCells - 1
	highY := lowY + MaxNumberOfCells - 1
	return CellArea{
		Low:  CellCoord{X: subClamp(lowX, extra), Y: subClamp(lowY, extra)},
		High: CellCoord{X: addClamp(highX, extra), Y: addClamp(highY, extra)},
	}
}

func subClamp(v, d uint32) uint32 {
	if d > v {
		return 0
	}
	return v - d
}

func addClamp(v, d uint32) uint32 {
	if v+d >= TotalNumberOfCellsPerMap {
		return TotalNumberOfCellsPerMap - 1
	}
	return v + d
}

// CellsForDistance returns how many cells a distance spans, rounded up.
func CellsForDistance(dist float32) uint32 {
	if dist <= 0 {
		return 0
	}
	return uint32(math.Ceil(float64(dist) / SizeOfGridCell))
}
