package terrain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/l1jgo/worldserver/internal/grid"
)

// LiquidStatus classifies a point against the liquid of its tile.
type LiquidStatus uint8

const (
	LiquidNoWater    LiquidStatus = 0x00
	LiquidAboveWater LiquidStatus = 0x01
	LiquidWaterWalk  LiquidStatus = 0x02
	LiquidInWater    LiquidStatus = 0x04
	LiquidUnderWater LiquidStatus = 0x08
)

func (s LiquidStatus) String() string {
	switch s {
	case LiquidNoWater:
		return "no_water"
	case LiquidAboveWater:
		return "above_water"
	case LiquidWaterWalk:
		return "water_walk"
	case LiquidInWater:
		return "in_water"
	case LiquidUnderWater:
		return "under_water"
	}
	return "unknown"
}

// LiquidData describes the liquid found at a point.
type LiquidData struct {
	Type       uint8
	Level      float32
	DepthLevel float32
}

var (
	ErrBadMagic  = errors.New("terrain: bad map magic")
	ErrTruncated = errors.New("terrain: truncated section")
)

// GridMap is the static terrain of one tile. Immutable once loaded, so one
// instance may be read by several map goroutines.
type GridMap struct {
	build uint32

	// area
	gridArea uint16
	areaMap  []uint16

	// height
	heightFn                func(g *GridMap, x, y float32) float32
	gridHeight              float32
	gridIntHeightMultiplier float32
	v9f, v8f                []float32
	v9u16, v8u16            []uint16
	v9u8, v8u8              []uint8

	// liquid
	liquidType   uint8
	liquidFlags  []uint8
	liquidMap    []float32
	liquidOffX   uint8
	liquidOffY   uint8
	liquidWidth  uint8
	liquidHeight uint8
	liquidLevel  float32

	holes []uint16
}

var emptyGridMap = &GridMap{heightFn: (*GridMap).heightFromFlat}

// Empty returns the tile used when no file exists: flat height 0, no area,
// no liquid.
func Empty() *GridMap { return emptyGridMap }

// LoadGridMap reads a tile file. On error no partial tile is returned; the
// caller falls back to Empty.
func LoadGridMap(path string) (*GridMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGridMap(raw)
}

// ParseGridMap decodes a tile from its file bytes.
func ParseGridMap(raw []byte) (*GridMap, error) {
	var hdr fileHeader
	if len(raw) < fileHeaderSize {
		return nil, fmt.Errorf("file header: %w", ErrTruncated)
	}
	if err := binary.Read(bytes.NewReader(raw[:fileHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("file header: %w", err)
	}
	if hdr.MapMagic != MapMagic || hdr.VersionMagic != MapVersionMagic {
		return nil, ErrBadMagic
	}

	g := &GridMap{build: hdr.BuildMagic, heightFn: (*GridMap).heightFromFlat}
	if hdr.AreaOffset != 0 {
		if err := g.loadArea(raw, hdr.AreaOffset); err != nil {
			return nil, fmt.Errorf("area section: %w", err)
		}
	}
	if hdr.HeightOffset != 0 {
		if err := g.loadHeight(raw, hdr.HeightOffset); err != nil {
			return nil, fmt.Errorf("height section: %w", err)
		}
	}
	if hdr.LiquidOffset != 0 {
		if err := g.loadLiquid(raw, hdr.LiquidOffset); err != nil {
			return nil, fmt.Errorf("liquid section: %w", err)
		}
	}
	if hdr.HolesOffset != 0 && hdr.HolesSize != 0 {
		g.holes = make([]uint16, holesEntries)
		if err := readAt(raw, hdr.HolesOffset, g.holes); err != nil {
			return nil, fmt.Errorf("holes section: %w", err)
		}
	}
	return g, nil
}

// readAt decodes data from raw starting at off.
func readAt(raw []byte, off uint32, data any) error {
	if int(off) > len(raw) {
		return ErrTruncated
	}
	if err := binary.Read(bytes.NewReader(raw[off:]), binary.LittleEndian, data); err != nil {
		return ErrTruncated
	}
	return nil
}

func (g *GridMap) loadArea(raw []byte, off uint32) error {
	var h areaHeader
	if err := readAt(raw, off, &h); err != nil {
		return err
	}
	if h.FourCC != MapAreaMagic {
		return ErrBadMagic
	}
	g.gridArea = h.GridArea
	if h.Flags&AreaNoArea == 0 {
		g.areaMap = make([]uint16, areaCells)
		return readAt(raw, off+areaHeaderSize, g.areaMap)
	}
	return nil
}

func (g *GridMap) loadHeight(raw []byte, off uint32) error {
	var h heightHeader
	if err := readAt(raw, off, &h); err != nil {
		return err
	}
	if h.FourCC != MapHeightMagic {
		return ErrBadMagic
	}
	g.gridHeight = h.GridHeight
	if h.Flags&HeightNoHeight != 0 {
		g.heightFn = (*GridMap).heightFromFlat
		return nil
	}

	data := off + heightHeaderSize
	switch {
	case h.Flags&HeightAsInt16 != 0:
		g.v9u16 = make([]uint16, v9Size)
		g.v8u16 = make([]uint16, v8Size)
		if err := readAt(raw, data, g.v9u16); err != nil {
			return err
		}
		if err := readAt(raw, data+v9Size*2, g.v8u16); err != nil {
			return err
		}
		g.gridIntHeightMultiplier = (h.GridMaxHeight - h.GridHeight) / 65535
		g.heightFn = (*GridMap).heightFromUint16
	case h.Flags&HeightAsInt8 != 0:
		g.v9u8 = make([]uint8, v9Size)
		g.v8u8 = make([]uint8, v8Size)
		if err := readAt(raw, data, g.v9u8); err != nil {
			return err
		}
		if err := readAt(raw, data+v9Size, g.v8u8); err != nil {
			return err
		}
		g.gridIntHeightMultiplier = (h.GridMaxHeight - h.GridHeight) / 255
		g.heightFn = (*GridMap).heightFromUint8
	default:
		g.v9f = make([]float32, v9Size)
		g.v8f = make([]float32, v8Size)
		if err := readAt(raw, data, g.v9f); err != nil {
			return err
		}
		if err := readAt(raw, data+v9Size*4, g.v8f); err != nil {
			return err
		}
		g.heightFn = (*GridMap).heightFromFloat
	}
	return nil
}

func (g *GridMap) loadLiquid(raw []byte, off uint32) error {
	var h liquidHeader
	if err := readAt(raw, off, &h); err != nil {
		return err
	}
	if h.FourCC != MapLiquidMagic {
		return ErrBadMagic
	}
	g.liquidType = uint8(h.LiquidType)
	g.liquidOffX = h.OffsetX
	g.liquidOffY = h.OffsetY
	g.liquidWidth = h.Width
	g.liquidHeight = h.Height
	g.liquidLevel = h.LiquidLevel

	data := off + liquidHeaderSize
	if h.Flags&LiquidNoType == 0 {
		g.liquidFlags = make([]uint8, areaCells)
		if err := readAt(raw, data, g.liquidFlags); err != nil {
			return err
		}
		data += areaCells
	}
	if h.Flags&LiquidNoHeight == 0 {
		g.liquidMap = make([]float32, int(h.Width)*int(h.Height))
		if err := readAt(raw, data, g.liquidMap); err != nil {
			return err
		}
	}
	return nil
}

// Build returns the client build the tile was extracted from.
func (g *GridMap) Build() uint32 { return g.build }

func (g *GridMap) HasArea() bool   { return g.areaMap != nil }
func (g *GridMap) HasLiquid() bool { return g.liquidType != 0 || g.liquidFlags != nil }
func (g *GridMap) HasHeight() bool {
	return g.v9f != nil || g.v9u16 != nil || g.v9u8 != nil
}

// HeightEncoding names the strategy chosen at load time.
func (g *GridMap) HeightEncoding() string {
	switch {
	case g.v9f != nil:
		return "float"
	case g.v9u16 != nil:
		return "int16"
	case g.v9u8 != nil:
		return "int8"
	}
	return "flat"
}

// Height returns the terrain height at world (x, y).
func (g *GridMap) Height(x, y float32) float32 {
	return g.heightFn(g, x, y)
}

// Area returns the area id at world (x, y); 0 when the tile has no area data.
func (g *GridMap) Area(x, y float32) uint16 {
	if g.areaMap == nil {
		return g.gridArea
	}
	lx := int(areaSide*(grid.CenterGridID-x/grid.SizeOfGrids)) & (areaSide - 1)
	ly := int(areaSide*(grid.CenterGridID-y/grid.SizeOfGrids)) & (areaSide - 1)
	return g.areaMap[lx*areaSide+ly]
}

// IsHole reports whether the terrain has a hole at world (x, y).
func (g *GridMap) IsHole(x, y float32) bool {
	if g.holes == nil {
		return false
	}
	cx := int(grid.MapResolution*(grid.CenterGridID-x/grid.SizeOfGrids)) & (grid.MapResolution - 1)
	cy := int(grid.MapResolution*(grid.CenterGridID-y/grid.SizeOfGrids)) & (grid.MapResolution - 1)
	// one holes entry per 8x8 block of height cells, 4x4 hole bits per entry
	entry := g.holes[(cx/8)*16+cy/8]
	bit := uint((cx%8)/2*4 + (cy%8)/2)
	return entry&(1<<bit) != 0
}

// cellOf maps world (x, y) onto a height cell and the offset inside it.
func cellOf(x, y float32) (xi, yi int, fx, fy float32) {
	fx = grid.MapResolution * (grid.CenterGridID - x/grid.SizeOfGrids)
	fy = grid.MapResolution * (grid.CenterGridID - y/grid.SizeOfGrids)
	xi, yi = int(fx), int(fy)
	fx -= float32(xi)
	fy -= float32(yi)
	xi &= grid.MapResolution - 1
	yi &= grid.MapResolution - 1
	return
}

// triangle interpolates inside one of the four triangles a height cell is
// split into; h5 is twice the cell-centre sample.
func triangle(fx, fy, h1, h2, h3, h4, h5 float32) float32 {
	var a, b, c float32
	if fx+fy < 1 {
		if fx > fy {
			a, b, c = h2-h1, h5-h1-h2, h1
		} else {
			a, b, c = h5-h1-h3, h3-h1, h1
		}
	} else {
		if fx > fy {
			a, b, c = h2+h4-h5, h4-h2, h5-h4
		} else {
			a, b, c = h4-h3, h3+h4-h5, h5-h4
		}
	}
	return a*fx + b*fy + c
}

func (g *GridMap) heightFromFlat(_, _ float32) float32 {
	return g.gridHeight
}

func (g *GridMap) heightFromFloat(x, y float32) float32 {
	xi, yi, fx, fy := cellOf(x, y)
	v9, v8 := g.v9f, g.v8f
	return triangle(fx, fy,
		v9[xi*v9Side+yi], v9[(xi+1)*v9Side+yi],
		v9[xi*v9Side+yi+1], v9[(xi+1)*v9Side+yi+1],
		2*v8[xi*v8Side+yi])
}

func (g *GridMap) heightFromUint16(x, y float32) float32 {
	xi, yi, fx, fy := cellOf(x, y)
	v9, v8 := g.v9u16, g.v8u16
	h := triangle(fx, fy,
		float32(v9[xi*v9Side+yi]), float32(v9[(xi+1)*v9Side+yi]),
		float32(v9[xi*v9Side+yi+1]), float32(v9[(xi+1)*v9Side+yi+1]),
		2*float32(v8[xi*v8Side+yi]))
	return h*g.gridIntHeightMultiplier + g.gridHeight
}

func (g *GridMap) heightFromUint8(x, y float32) float32 {
	xi, yi, fx, fy := cellOf(x, y)
	v9, v8 := g.v9u8, g.v8u8
	h := triangle(fx, fy,
		float32(v9[xi*v9Side+yi]), float32(v9[(xi+1)*v9Side+yi]),
		float32(v9[xi*v9Side+yi+1]), float32(v9[(xi+1)*v9Side+yi+1]),
		2*float32(v8[xi*v8Side+yi]))
	return h*g.gridIntHeightMultiplier + g.gridHeight
}

// LiquidLevel returns the liquid surface height at (x, y), or InvalidHeight.
func (g *GridMap) LiquidLevel(x, y float32) float32 {
	if g.liquidMap == nil {
		if g.HasLiquid() {
			return g.liquidLevel
		}
		return InvalidHeight
	}
	xi, yi, _, _ := cellOf(x, y)
	lx := xi - int(g.liquidOffY)
	ly := yi - int(g.liquidOffX)
	if lx < 0 || lx >= int(g.liquidHeight) || ly < 0 || ly >= int(g.liquidWidth) {
		return InvalidHeight
	}
	return g.liquidMap[lx*int(g.liquidWidth)+ly]
}

// LiquidStatus classifies (x, y, z) against the tile's liquid, considering
// only liquid types in reqTypeMask (0 accepts any type).
func (g *GridMap) LiquidStatus(x, y, z float32, reqTypeMask uint8) (LiquidStatus, LiquidData) {
	if !g.HasLiquid() {
		return LiquidNoWater, LiquidData{}
	}
	xi, yi, _, _ := cellOf(x, y)

	liqType := g.liquidType
	if g.liquidFlags != nil {
		liqType = g.liquidFlags[(xi>>3)*areaSide+(yi>>3)]
	}
	if liqType == 0 {
		return LiquidNoWater, LiquidData{}
	}
	if reqTypeMask != 0 && reqTypeMask&liqType == 0 {
		return LiquidNoWater, LiquidData{}
	}

	lx := xi - int(g.liquidOffY)
	ly := yi - int(g.liquidOffX)
	if lx < 0 || lx >= int(g.liquidHeight) || ly < 0 || ly >= int(g.liquidWidth) {
		return LiquidNoWater, LiquidData{}
	}
	level := g.liquidLevel
	if g.liquidMap != nil {
		level = g.liquidMap[lx*int(g.liquidWidth)+ly]
	}

	ground := g.Height(x, y)
	if level < ground || z < ground-2 {
		return LiquidNoWater, LiquidData{}
	}
	data := LiquidData{Type: liqType, Level: level, DepthLevel: ground}

	delta := int((level - z) * 10)
	switch {
	case delta > 20:
		return LiquidUnderWater, data
	case delta > 0:
		return LiquidInWater, data
	case delta > -1:
		return LiquidWaterWalk, data
	}
	return LiquidAboveWater, data
}
