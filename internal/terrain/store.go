package terrain

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// TilePath returns the file name of tile (tx, ty) of a map.
func TilePath(dir string, mapID, tx, ty uint32) string {
	return filepath.Join(dir, fmt.Sprintf("%03d%02d%02d.map", mapID, tx, ty))
}

type tileKey struct{ x, y uint32 }

type storeEntry struct {
	gm   *GridMap
	refs int
	// ready is closed once gm is set.
	ready chan struct{}
}

// Store caches the tiles of one map template and shares them between the
// base map and all of its instances. Tiles are reference counted and dropped
// when the last map releases them.
type Store struct {
	mu    sync.Mutex
	dir   string
	mapID uint32
	tiles map[tileKey]*storeEntry
	log   *zap.Logger

	loadFile func(path string) (*GridMap, error)
}

func NewStore(dir string, mapID uint32, log *zap.Logger) *Store {
	return &Store{
		dir:   dir,
		mapID: mapID,
		tiles: make(map[tileKey]*storeEntry),
		log:   log.With(zap.Uint32("map", mapID)),

		loadFile: LoadGridMap,
	}
}

func (s *Store) MapID() uint32 { return s.mapID }

// Acquire returns tile (tx, ty), loading it from disk on first use. A missing
// or corrupt file yields Empty. Loading blocks the calling map goroutine and
// any other map waiting for the same tile, but not maps loading other tiles.
func (s *Store) Acquire(tx, ty uint32) *GridMap {
	k := tileKey{tx, ty}
	s.mu.Lock()
	if e, ok := s.tiles[k]; ok {
		e.refs++
		s.mu.Unlock()
		<-e.ready
		return e.gm
	}
	e := &storeEntry{refs: 1, ready: make(chan struct{})}
	s.tiles[k] = e
	s.mu.Unlock()

	e.gm = s.load(tx, ty)
	close(e.ready)
	return e.gm
}

func (s *Store) load(tx, ty uint32) *GridMap {
	path := TilePath(s.dir, s.mapID, tx, ty)
	gm, err := s.loadFile(path)
	switch {
	case err == nil:
		s.log.Debug("tile loaded", zap.String("file", path), zap.String("height", gm.HeightEncoding()))
		return gm
	case errors.Is(err, fs.ErrNotExist):
		// open sea and unused tiles have no file
		s.log.Debug("tile missing, using flat terrain", zap.Uint32("tx", tx), zap.Uint32("ty", ty))
	default:
		s.log.Error("tile load failed, using flat terrain", zap.String("file", path), zap.Error(err))
	}
	return Empty()
}

// Release drops one reference to tile (tx, ty).
func (s *Store) Release(tx, ty uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := tileKey{tx, ty}
	e, ok := s.tiles[k]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(s.tiles, k)
	}
}

// Loaded returns the number of resident tiles.
func (s *Store) Loaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tiles)
}

// Refs returns the reference count of tile (tx, ty).
func (s *Store) Refs(tx, ty uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.tiles[tileKey{tx, ty}]; ok {
		return e.refs
	}
	return 0
}
