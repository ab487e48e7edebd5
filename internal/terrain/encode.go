package terrain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// HeightEncoding selects how the height arrays are written.
type HeightEncoding uint8

const (
	HeightFlat HeightEncoding = iota // NO_HEIGHT: GridHeight everywhere
	HeightFloat
	HeightInt16
	HeightInt8
)

// TileSpec is an in-memory description of a tile file. Nil sections are left
// out of the file.
type TileSpec struct {
	Build  uint32
	Area   *AreaSpec
	Height *HeightSpec
	Liquid *LiquidSpec
	Holes  []uint16 // 16*16 entries, or nil
}

type AreaSpec struct {
	GridArea uint16
	// Map is written only when non-nil (16*16 entries, [x*16+y]).
	Map []uint16
}

type HeightSpec struct {
	Encoding      HeightEncoding
	GridHeight    float32
	GridMaxHeight float32
	// V9 (129*129) and V8 (128*128) absolute heights; quantized for the
	// integer encodings.
	V9 []float32
	V8 []float32
}

type LiquidSpec struct {
	Type   uint8
	Flags  []uint8 // 16*16 per-cell types, or nil (NO_TYPE)
	OffX   uint8
	OffY   uint8
	Width  uint8
	Height uint8
	Level  float32
	Map    []float32 // Width*Height levels, or nil (NO_HEIGHT)
}

// FlatHeights returns V9/V8 arrays filled with h.
func FlatHeights(h float32) (v9, v8 []float32) {
	v9 = make([]float32, v9Size)
	v8 = make([]float32, v8Size)
	for i := range v9 {
		v9[i] = h
	}
	for i := range v8 {
		v8[i] = h
	}
	return v9, v8
}

// Encode writes spec in the tile file format.
func Encode(w io.Writer, spec TileSpec) error {
	var area, height, liquid, holes bytes.Buffer

	if a := spec.Area; a != nil {
		var flags uint16
		if a.Map == nil {
			flags |= AreaNoArea
		}
		write(&area, areaHeader{FourCC: MapAreaMagic, Flags: flags, GridArea: a.GridArea})
		if a.Map != nil {
			if len(a.Map) != areaCells {
				return fmt.Errorf("area map: want %d entries, got %d", areaCells, len(a.Map))
			}
			write(&area, a.Map)
		}
	}

	if h := spec.Height; h != nil {
		if err := encodeHeight(&height, h); err != nil {
			return err
		}
	}

	if l := spec.Liquid; l != nil {
		var flags uint16
		if l.Flags == nil {
			flags |= LiquidNoType
		}
		if l.Map == nil {
			flags |= LiquidNoHeight
		}
		write(&liquid, liquidHeader{
			FourCC: MapLiquidMagic, Flags: flags, LiquidType: uint16(l.Type),
			OffsetX: l.OffX, OffsetY: l.OffY, Width: l.Width, Height: l.Height,
			LiquidLevel: l.Level,
		})
		if l.Flags != nil {
			if len(l.Flags) != areaCells {
				return fmt.Errorf("liquid flags: want %d entries, got %d", areaCells, len(l.Flags))
			}
			write(&liquid, l.Flags)
		}
		if l.Map != nil {
			if len(l.Map) != int(l.Width)*int(l.Height) {
				return fmt.Errorf("liquid map: want %d entries, got %d", int(l.Width)*int(l.Height), len(l.Map))
			}
			write(&liquid, l.Map)
		}
	}

	if spec.Holes != nil {
		if len(spec.Holes) != holesEntries {
			return fmt.Errorf("holes: want %d entries, got %d", holesEntries, len(spec.Holes))
		}
		write(&holes, spec.Holes)
	}

	hdr := fileHeader{MapMagic: MapMagic, VersionMagic: MapVersionMagic, BuildMagic: spec.Build}
	off := uint32(fileHeaderSize)
	place := func(b *bytes.Buffer, offset, size *uint32) {
		if b.Len() == 0 {
			return
		}
		*offset, *size = off, uint32(b.Len())
		off += uint32(b.Len())
	}
	place(&area, &hdr.AreaOffset, &hdr.AreaSize)
	place(&height, &hdr.HeightOffset, &hdr.HeightSize)
	place(&liquid, &hdr.LiquidOffset, &hdr.LiquidSize)
	place(&holes, &hdr.HolesOffset, &hdr.HolesSize)

	var out bytes.Buffer
	write(&out, hdr)
	for _, b := range []*bytes.Buffer{&area, &height, &liquid, &holes} {
		out.Write(b.Bytes())
	}
	_, err := w.Write(out.Bytes())
	return err
}

func encodeHeight(buf *bytes.Buffer, h *HeightSpec) error {
	hdr := heightHeader{FourCC: MapHeightMagic, GridHeight: h.GridHeight, GridMaxHeight: h.GridMaxHeight}
	switch h.Encoding {
	case HeightFlat:
		hdr.Flags = HeightNoHeight
		write(buf, hdr)
		return nil
	case HeightInt16:
		hdr.Flags = HeightAsInt16
	case HeightInt8:
		hdr.Flags = HeightAsInt8
	}
	if len(h.V9) != v9Size || len(h.V8) != v8Size {
		return fmt.Errorf("height arrays: want %d/%d entries, got %d/%d", v9Size, v8Size, len(h.V9), len(h.V8))
	}
	write(buf, hdr)

	switch h.Encoding {
	case HeightFloat:
		write(buf, h.V9)
		write(buf, h.V8)
	case HeightInt16:
		write(buf, quantize[uint16](h.V9, h.GridHeight, h.GridMaxHeight, 65535))
		write(buf, quantize[uint16](h.V8, h.GridHeight, h.GridMaxHeight, 65535))
	case HeightInt8:
		write(buf, quantize[uint8](h.V9, h.GridHeight, h.GridMaxHeight, 255))
		write(buf, quantize[uint8](h.V8, h.GridHeight, h.GridMaxHeight, 255))
	default:
		return fmt.Errorf("unknown height encoding %d", h.Encoding)
	}
	return nil
}

func quantize[T uint8 | uint16](src []float32, minH, maxH float32, steps float64) []T {
	out := make([]T, len(src))
	span := float64(maxH - minH)
	if span <= 0 {
		return out
	}
	for i, v := range src {
		q := math.Round(float64(v-minH) / span * steps)
		out[i] = T(math.Max(0, math.Min(steps, q)))
	}
	return out
}

// write cannot fail on a bytes.Buffer with fixed-size data.
func write(buf *bytes.Buffer, data any) {
	_ = binary.Write(buf, binary.LittleEndian, data)
}
