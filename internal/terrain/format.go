// Package terrain loads the static per-tile terrain (height, area, liquid,
// holes) of a map and answers point queries against it.
package terrain

import "encoding/binary"

// fourcc builds a little-endian four-character code.
func fourcc(s string) uint32 {
	return binary.LittleEndian.Uint32([]byte(s))
}

var (
	MapMagic        = fourcc("MAPS")
	MapVersionMagic = fourcc("v1.1")
	MapAreaMagic    = fourcc("AREA")
	MapHeightMagic  = fourcc("MHGT")
	MapLiquidMagic  = fourcc("MLIQ")
)

// Section flags.
const (
	AreaNoArea = 0x0001

	HeightNoHeight = 0x0001
	HeightAsInt16  = 0x0002
	HeightAsInt8   = 0x0004

	LiquidNoType   = 0x0001
	LiquidNoHeight = 0x0002
)

// Liquid type bits, used both in tile data and as request masks.
const (
	LiquidTypeWater     uint8 = 0x01
	LiquidTypeOcean     uint8 = 0x02
	LiquidTypeMagma     uint8 = 0x04
	LiquidTypeSlime     uint8 = 0x08
	LiquidTypeDarkWater uint8 = 0x10
	LiquidTypeWMOWater  uint8 = 0x20

	AllLiquids = LiquidTypeWater | LiquidTypeOcean | LiquidTypeMagma | LiquidTypeSlime |
		LiquidTypeDarkWater | LiquidTypeWMOWater
)

const (
	v9Side       = 129
	v8Side       = 128
	v9Size       = v9Side * v9Side
	v8Size       = v8Side * v8Side
	areaSide     = 16
	areaCells    = areaSide * areaSide
	holesEntries = 16 * 16
)

// InvalidHeight is returned by combined height queries that found nothing.
const InvalidHeight = -100000.0

// fileHeader is the fixed header at offset 0 of every tile file.
type fileHeader struct {
	MapMagic     uint32
	VersionMagic uint32
	BuildMagic   uint32
	AreaOffset   uint32
	AreaSize     uint32
	HeightOffset uint32
	HeightSize   uint32
	LiquidOffset uint32
	LiquidSize   uint32
	HolesOffset  uint32
	HolesSize    uint32
}

const fileHeaderSize = 11 * 4

type areaHeader struct {
	FourCC   uint32
	Flags    uint16
	GridArea uint16
}

const areaHeaderSize = 8

type heightHeader struct {
	FourCC        uint32
	Flags         uint32
	GridHeight    float32
	GridMaxHeight float32
}

const heightHeaderSize = 16

type liquidHeader struct {
	FourCC      uint32
	Flags       uint16
	LiquidType  uint16
	OffsetX     uint8
	OffsetY     uint8
	Width       uint8
	Height      uint8
	LiquidLevel float32
}

const liquidHeaderSize = 16
