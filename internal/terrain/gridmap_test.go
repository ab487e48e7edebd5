package terrain

import (
	"bytes"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/l1jgo/worldserver/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func encodeTile(t *testing.T, spec TileSpec) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, spec))
	return buf.Bytes()
}

func parseTile(t *testing.T, spec TileSpec) *GridMap {
	t.Helper()
	gm, err := ParseGridMap(encodeTile(t, spec))
	require.NoError(t, err)
	return gm
}

// rampHeights makes height equal to the sample row index, so the
// interpolated height at a point is its fractional row coordinate.
func rampHeights() (v9, v8 []float32) {
	v9 = make([]float32, v9Size)
	v8 = make([]float32, v8Size)
	for i := 0; i < v9Side; i++ {
		for j := 0; j < v9Side; j++ {
			v9[i*v9Side+j] = float32(i)
		}
	}
	for i := 0; i < v8Side; i++ {
		for j := 0; j < v8Side; j++ {
			v8[i*v8Side+j] = float32(i) + 0.5
		}
	}
	return v9, v8
}

// cellPoint returns the world position whose height-cell coordinates,
// counted from the tile corner, are (fx, fy).
func cellPoint(fx, fy float64) (float32, float32) {
	return float32(-grid.SizeOfGrids * fx / grid.MapResolution),
		float32(-grid.SizeOfGrids * fy / grid.MapResolution)
}

// quarter, quarterY lies inside height cell (32, 32) of tile (32, 32).
var quarter, quarterY = cellPoint(32.25, 32.5)

func TestGridMap_NoHeightIsConstant(t *testing.T) {
	gm := parseTile(t, TileSpec{Height: &HeightSpec{Encoding: HeightFlat, GridHeight: 42.5}})
	assert.Equal(t, "flat", gm.HeightEncoding())

	for i := 0; i < 50; i++ {
		x := float32(-grid.SizeOfGrids) + float32(i)*10.7
		y := float32(i) * -9.3
		h := gm.Height(x, y)
		assert.False(t, math.IsNaN(float64(h)))
		assert.Equal(t, float32(42.5), h)
	}
}

func TestGridMap_HeightEncodings(t *testing.T) {
	v9, v8 := rampHeights()
	cases := []struct {
		enc   HeightEncoding
		name  string
		delta float64
	}{
		{HeightFloat, "float", 0.01},
		{HeightInt16, "int16", 0.01},
		{HeightInt8, "int8", 0.6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gm := parseTile(t, TileSpec{Height: &HeightSpec{
				Encoding: tc.enc, GridHeight: 0, GridMaxHeight: 128, V9: v9, V8: v8,
			}})
			assert.Equal(t, tc.name, gm.HeightEncoding())
			assert.True(t, gm.HasHeight())
			assert.InDelta(t, 32.25, gm.Height(cellPoint(32.25, 32.5)), tc.delta)
			assert.InDelta(t, 32.5, gm.Height(cellPoint(32.5, 32.25)), tc.delta)
		})
	}
}

func TestGridMap_Area(t *testing.T) {
	areas := make([]uint16, areaCells)
	for lx := 0; lx < areaSide; lx++ {
		for ly := 0; ly < areaSide; ly++ {
			areas[lx*areaSide+ly] = uint16(100 + lx)
		}
	}
	gm := parseTile(t, TileSpec{Area: &AreaSpec{GridArea: 7, Map: areas}})
	assert.True(t, gm.HasArea())
	assert.Equal(t, uint16(104), gm.Area(quarter, quarterY))

	flat := parseTile(t, TileSpec{Area: &AreaSpec{GridArea: 7}})
	assert.False(t, flat.HasArea())
	assert.Equal(t, uint16(7), flat.Area(quarter, quarterY))
}

func TestGridMap_LiquidStatus(t *testing.T) {
	gm := parseTile(t, TileSpec{
		Height: &HeightSpec{Encoding: HeightFlat, GridHeight: 0},
		Liquid: &LiquidSpec{Type: LiquidTypeWater, Width: 128, Height: 128, Level: 10},
	})
	require.True(t, gm.HasLiquid())

	cases := []struct {
		z    float32
		want LiquidStatus
	}{
		{5, LiquidUnderWater},
		{9, LiquidInWater},
		{10, LiquidWaterWalk},
		{12, LiquidAboveWater},
	}
	for _, tc := range cases {
		status, data := gm.LiquidStatus(quarter, quarterY, tc.z, AllLiquids)
		assert.Equal(t, tc.want, status, "z=%v", tc.z)
		assert.Equal(t, float32(10), data.Level)
		assert.Equal(t, LiquidTypeWater, data.Type)
	}

	status, _ := gm.LiquidStatus(quarter, quarterY, 5, LiquidTypeMagma)
	assert.Equal(t, LiquidNoWater, status, "mask filters out water")
	status, _ = gm.LiquidStatus(quarter, quarterY, -5, AllLiquids)
	assert.Equal(t, LiquidNoWater, status, "below ground")
}

func TestGridMap_LiquidPerCellTypesAndLevels(t *testing.T) {
	flags := make([]uint8, areaCells)
	// only the 8x8 block holding height cell (32,32)
	flags[(32>>3)*areaSide+(32>>3)] = LiquidTypeSlime
	levels := make([]float32, 4*4)
	for i := range levels {
		levels[i] = 3
	}
	gm := parseTile(t, TileSpec{
		Liquid: &LiquidSpec{Type: LiquidTypeWater, Flags: flags, OffX: 30, OffY: 30, Width: 4, Height: 4, Map: levels},
	})
	status, data := gm.LiquidStatus(quarter, quarterY, 2, 0)
	assert.Equal(t, LiquidInWater, status)
	assert.Equal(t, LiquidTypeSlime, data.Type)
	assert.Equal(t, float32(3), gm.LiquidLevel(quarter, quarterY))

	status, _ = gm.LiquidStatus(0, 0, 2, 0)
	assert.Equal(t, LiquidNoWater, status)
}

func TestGridMap_MissingSectionsUseDefaults(t *testing.T) {
	gm := parseTile(t, TileSpec{Build: 12340})
	assert.Equal(t, uint32(12340), gm.Build())
	assert.Equal(t, float32(0), gm.Height(quarter, quarterY))
	assert.Equal(t, uint16(0), gm.Area(quarter, quarterY))
	status, _ := gm.LiquidStatus(quarter, quarterY, 0, AllLiquids)
	assert.Equal(t, LiquidNoWater, status)
	assert.Equal(t, float32(InvalidHeight), gm.LiquidLevel(quarter, quarterY))

	e := Empty()
	assert.Equal(t, float32(0), e.Height(1, 2))
	assert.Equal(t, uint16(0), e.Area(1, 2))
}

func TestGridMap_CorruptFiles(t *testing.T) {
	_, err := ParseGridMap([]byte("MAPS"))
	assert.ErrorIs(t, err, ErrTruncated)

	raw := encodeTile(t, TileSpec{})
	copy(raw[0:4], "XXXX")
	_, err = ParseGridMap(raw)
	assert.ErrorIs(t, err, ErrBadMagic)

	v9, v8 := rampHeights()
	raw = encodeTile(t, TileSpec{Height: &HeightSpec{Encoding: HeightFloat, V9: v9, V8: v8}})
	_, err = ParseGridMap(raw[:len(raw)-100])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestGridMap_Holes(t *testing.T) {
	holes := make([]uint16, holesEntries)
	holes[(32/8)*16+32/8] = 1
	gm := parseTile(t, TileSpec{Holes: holes})
	assert.True(t, gm.IsHole(quarter, quarterY))
	assert.False(t, gm.IsHole(0, 0))
}

func TestStore_AcquireRelease(t *testing.T) {
	dir := t.TempDir()
	raw := encodeTile(t, TileSpec{Height: &HeightSpec{Encoding: HeightFlat, GridHeight: 9}})
	require.NoError(t, os.WriteFile(TilePath(dir, 1, 31, 31), raw, 0o644))
	require.NoError(t, os.WriteFile(TilePath(dir, 1, 5, 5), []byte("garbage"), 0o644))

	s := NewStore(dir, 1, zap.NewNop())
	gm := s.Acquire(31, 31)
	assert.Equal(t, float32(9), gm.Height(0, 0))
	assert.Same(t, gm, s.Acquire(31, 31))
	assert.Equal(t, 2, s.Refs(31, 31))

	assert.Same(t, Empty(), s.Acquire(0, 0), "missing file")
	assert.Same(t, Empty(), s.Acquire(5, 5), "corrupt file")
	assert.Equal(t, 3, s.Loaded())

	s.Release(31, 31)
	s.Release(31, 31)
	assert.Equal(t, 0, s.Refs(31, 31))
	assert.Equal(t, 2, s.Loaded())
	s.Release(99, 99)
	assert.Equal(t, filepath.Join(dir, "001"+"31"+"31.map"), TilePath(dir, 1, 31, 31))
}

func TestStore_ConcurrentAcquireLoadsOnce(t *testing.T) {
	dir := t.TempDir()
	raw := encodeTile(t, TileSpec{Height: &HeightSpec{Encoding: HeightFlat, GridHeight: 4}})
	require.NoError(t, os.WriteFile(TilePath(dir, 1, 20, 20), raw, 0o644))

	s := NewStore(dir, 1, zap.NewNop())
	var mu sync.Mutex
	loads := 0
	s.loadFile = func(path string) (*GridMap, error) {
		mu.Lock()
		loads++
		mu.Unlock()
		return LoadGridMap(path)
	}

	const n = 16
	got := make([]*GridMap, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = s.Acquire(20, 20)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, loads)
	assert.Equal(t, n, s.Refs(20, 20))
	for _, gm := range got {
		require.NotNil(t, gm)
		assert.Same(t, got[0], gm)
		assert.Equal(t, float32(4), gm.Height(0, 0))
	}
}

func TestStore_SlowLoadDoesNotBlockOtherTiles(t *testing.T) {
	s := NewStore(t.TempDir(), 1, zap.NewNop())
	slow := TilePath(s.dir, 1, 1, 1)
	started := make(chan struct{})
	unblock := make(chan struct{})
	s.loadFile = func(path string) (*GridMap, error) {
		if path == slow {
			close(started)
			<-unblock
		}
		return nil, fs.ErrNotExist
	}

	first := make(chan *GridMap, 1)
	go func() { first <- s.Acquire(1, 1) }()
	<-started

	other := make(chan *GridMap, 1)
	go func() { other <- s.Acquire(2, 2) }()
	select {
	case gm := <-other:
		assert.Same(t, Empty(), gm)
	case <-time.After(2 * time.Second):
		t.Fatal("acquiring another tile waited for a slow load")
	}
	assert.Equal(t, 1, s.Refs(1, 1), "the slow tile is registered while it loads")

	close(unblock)
	assert.Same(t, Empty(), <-first)
}
