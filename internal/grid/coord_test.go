package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeCellCoord_Origin(t *testing.T) {
	c := ComputeCellCoord(0, 0)
	assert.Equal(t, CellCoord{X: CenterGridCellID, Y: CenterGridCellID}, c)
	assert.Equal(t, GridCoord{X: CenterGridID, Y: CenterGridID}, c.Grid())
}

func TestComputeCellCoord_MatchesGridCoord(t *testing.T) {
	points := [][2]float32{
		{-8949.95, -132.49},
		{1676.71, 1678.31},
		{16000, -16000},
		{-17000, 17000},
		{100.5, -3.2},
	}
	for _, p := range points {
		c := ComputeCellCoord(p[0], p[1])
		assert.True(t, c.IsValid(), "cell of %v", p)
		assert.Equal(t, ComputeGridCoord(p[0], p[1]), c.Grid(), "grid of %v", p)
	}
}

func TestComputeCellCoord_OutsideMapIsInvalid(t *testing.T) {
	assert.False(t, ComputeCellCoord(MapHalfSize+SizeOfGridCell, 0).IsValid())
	assert.False(t, ComputeCellCoord(0, -MapHalfSize-SizeOfGridCell).IsValid())
	assert.False(t, ComputeCellCoord(-MapHalfSize-1, 0).IsValid(), "just below the low edge")
	assert.False(t, ComputeGridCoord(0, -MapHalfSize-SizeOfGrids).IsValid())
	assert.True(t, ComputeCellCoord(-MapHalfSize+1, -MapHalfSize+1).IsValid())
	assert.Equal(t, uint32(0), ComputeCellCoord(-MapHalfSize+1, 0).X)
	assert.False(t, IsValidMapCoord(MapHalfSize, 0))
	assert.True(t, IsValidMapCoord(MapHalfSize-1, -MapHalfSize+1))
}

func TestTileIndexIsMirrored(t *testing.T) {
	g := GridCoord{X: 30, Y: 40}
	assert.Equal(t, uint32(33), g.TileX())
	assert.Equal(t, uint32(23), g.TileY())
}

func TestCalculateCellArea(t *testing.T) {
	a := CalculateCellArea(0, 0, 0)
	assert.Equal(t, a.Low, a.High)

	// centre of cell 256, two cells each way
	half := float32(SizeOfGridCell / 2)
	a = CalculateCellArea(half, half, SizeOfGridCell*2)
	assert.Equal(t, uint32(5), a.High.X-a.Low.X+1)
	assert.True(t, a.Contains(ComputeCellCoord(half, half)))

	var n int
	a.Each(func(CellCoord) { n++ })
	assert.Equal(t, 25, n)
}

func TestCalculateCellArea_ClampsAtEdge(t *testing.T) {
	a := CalculateCellArea(-MapHalfSize+1, -MapHalfSize+1, 200)
	assert.Equal(t, uint32(0), a.Low.X)
	assert.Equal(t, uint32(0), a.Low.Y)
	assert.True(t, a.High.IsValid())
}

func TestGridBounds(t *testing.T) {
	b := GridBounds(GridCoord{X: 0, Y: 63}, 2)
	assert.Equal(t, CellCoord{X: 0, Y: 63*8 - 2}, b.Low)
	assert.Equal(t, CellCoord{X: 9, Y: TotalNumberOfCellsPerMap - 1}, b.High)
}
