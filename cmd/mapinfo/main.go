// mapinfo inspects and generates terrain tile files.
//
// Usage:
//
//	go run ./cmd/mapinfo <command> [flags]
//
// Commands: info, probe, gen
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/l1jgo/worldserver/internal/grid"
	"github.com/l1jgo/worldserver/internal/terrain"
)

func printUsage() {
	fmt.Println("Usage: mapinfo <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  info   Print the sections of one tile file (-file)")
	fmt.Println("  probe  Print height, area and liquid of a map at -x -y -z")
	fmt.Println("  gen    Write a flat tile covering the grid at -x -y")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	dir := fs.String("dir", filepath.Join("data", "maps"), "terrain directory")
	file := fs.String("file", "", "tile file (info)")
	mapID := fs.Uint("map", 0, "map id")
	x := fs.Float64("x", 0, "world x")
	y := fs.Float64("y", 0, "world y")
	z := fs.Float64("z", 0, "world z (probe)")
	height := fs.Float64("height", 0, "ground height (gen)")
	area := fs.Uint("area", 0, "area id (gen)")
	water := fs.Float64("water", terrain.InvalidHeight, "water level, omitted when unset (gen)")
	_ = fs.Parse(os.Args[2:])

	var err error
	switch cmd {
	case "info":
		err = info(*file)
	case "probe":
		err = probe(*dir, uint32(*mapID), float32(*x), float32(*y), float32(*z))
	case "gen":
		err = gen(*dir, uint32(*mapID), float32(*x), float32(*y), float32(*height), uint16(*area), float32(*water))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func info(path string) error {
	if path == "" {
		return fmt.Errorf("-file is required")
	}
	gm, err := terrain.LoadGridMap(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	fmt.Printf("file:    %s\n", path)
	fmt.Printf("build:   %d\n", gm.Build())
	fmt.Printf("area:    %t\n", gm.HasArea())
	fmt.Printf("height:  %t (%s)\n", gm.HasHeight(), gm.HeightEncoding())
	fmt.Printf("liquid:  %t\n", gm.HasLiquid())
	return nil
}

// tileFor returns the grid holding (x, y) and the tile file it is stored in.
func tileFor(dir string, mapID uint32, x, y float32) (grid.GridCoord, string, error) {
	if !grid.IsValidMapCoord(x, y) {
		return grid.GridCoord{}, "", fmt.Errorf("(%.2f, %.2f) is outside the map", x, y)
	}
	g := grid.ComputeGridCoord(x, y)
	return g, terrain.TilePath(dir, mapID, g.TileX(), g.TileY()), nil
}

func probe(dir string, mapID uint32, x, y, z float32) error {
	g, path, err := tileFor(dir, mapID, x, y)
	if err != nil {
		return err
	}
	gm, err := terrain.LoadGridMap(path)
	if err != nil {
		fmt.Printf("no tile at %s (%v), using flat ground\n", path, err)
		gm = terrain.Empty()
	}
	cell := grid.ComputeCellCoord(x, y)
	status, liq := gm.LiquidStatus(x, y, z, terrain.AllLiquids)

	fmt.Printf("grid:    (%d, %d) tile %s\n", g.X, g.Y, filepath.Base(path))
	fmt.Printf("cell:    (%d, %d)\n", cell.X, cell.Y)
	fmt.Printf("ground:  %.3f hole=%t\n", gm.Height(x, y), gm.IsHole(x, y))
	fmt.Printf("area:    %d\n", gm.Area(x, y))
	fmt.Printf("liquid:  %s type=%d level=%.3f\n", status, liq.Type, liq.Level)
	return nil
}

func gen(dir string, mapID uint32, x, y, height float32, area uint16, water float32) error {
	_, path, err := tileFor(dir, mapID, x, y)
	if err != nil {
		return err
	}
	spec := terrain.TileSpec{
		Area:   &terrain.AreaSpec{GridArea: area},
		Height: &terrain.HeightSpec{Encoding: terrain.HeightFlat, GridHeight: height, GridMaxHeight: height},
	}
	if water != terrain.InvalidHeight {
		spec.Liquid = &terrain.LiquidSpec{
			Type:   terrain.LiquidTypeWater,
			Width:  grid.MapResolution,
			Height: grid.MapResolution,
			Level:  water,
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := terrain.Encode(out, spec); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
