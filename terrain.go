// Package tinyterrain implements a streamable on-disk store for 2D voxel
// terrain. A terrain is a fixed grid of 8x8-vertex chunks held in a single
// random-access file; decoded chunks pass through a fixed-capacity LRU
// cache with write-back on eviction, and a background worker prefetches
// rectangular regions around registered streaming handlers.
package tinyterrain

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/df-mc/atomic"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oriumgames/tinyterrain/format"
)

// ErrClosed is returned by operations on a terrain after Close.
var ErrClosed = errors.New("terrain is closed")

// ErrReadOnly is returned by mutating operations on a read-only terrain.
var ErrReadOnly = errors.New("terrain is read-only")

// Terrain is an on-disk chunk store. All methods are safe for concurrent
// use; file access is serialised on an internal lock shared with the
// streaming worker.
type Terrain struct {
	conf Config
	log  logrus.FieldLogger

	// fileMu guards every seek/read/write sequence on f. Region loads hold
	// it for their whole sweep so the cursor is not disturbed mid-row.
	fileMu sync.Mutex
	f      *os.File

	width, height uint32
	writable      bool

	biomes format.BiomeRegistry
	cache  *chunkCache

	handlerMu     sync.Mutex
	handlers      map[uuid.UUID]*StreamingHandler
	workerRunning bool
	workerStop    chan struct{}
	workerDone    sync.WaitGroup

	callbackMu sync.Mutex
	callbacks  []func(format.ChunkCoord)

	closed atomic.Bool
}

// Create creates a new terrain file at path with the given dimensions in
// chunks, using default options. It fails if the file already exists.
func Create(path string, width, height uint32, biomes format.BiomeRegistry) (*Terrain, error) {
	var conf Config
	return conf.Create(path, width, height, biomes)
}

// Open opens an existing terrain file at path using default options.
func Open(path string, biomes format.BiomeRegistry) (*Terrain, error) {
	var conf Config
	return conf.Open(path, biomes)
}

// Create creates a new terrain file at path with the given dimensions in
// chunks. The file is sized to hold every record up front, so chunks never
// explicitly written read back as zeroed records.
func (conf Config) Create(path string, width, height uint32, biomes format.BiomeRegistry) (*Terrain, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: terrain dimensions %dx%d", format.ErrOutOfRange, width, height)
	}
	conf = conf.withDefaults()
	if conf.ReadOnly {
		return nil, fmt.Errorf("create terrain: %w", ErrReadOnly)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create terrain: %w", err)
	}
	if err := format.WriteHeader(f, width, height); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Truncate(bodySize(width, height)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("size terrain body: %w", err)
	}
	return conf.newTerrain(f, width, height, biomes, true), nil
}

// Open opens an existing terrain file at path.
func (conf Config) Open(path string, biomes format.BiomeRegistry) (*Terrain, error) {
	conf = conf.withDefaults()

	flag := os.O_RDWR
	if conf.ReadOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("open terrain: %w", err)
	}
	width, height, err := format.ReadHeader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if width == 0 || height == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: header dimensions %dx%d", format.ErrMalformedInput, width, height)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat terrain: %w", err)
	}
	if fi.Size() < bodySize(width, height) {
		_ = f.Close()
		return nil, fmt.Errorf("%w: file is %d bytes, want %d for %dx%d chunks",
			format.ErrMalformedInput, fi.Size(), bodySize(width, height), width, height)
	}
	return conf.newTerrain(f, width, height, biomes, !conf.ReadOnly), nil
}

func (conf Config) newTerrain(f *os.File, width, height uint32, biomes format.BiomeRegistry, writable bool) *Terrain {
	return &Terrain{
		conf:     conf,
		log:      conf.Log,
		f:        f,
		width:    width,
		height:   height,
		writable: writable,
		biomes:   biomes,
		cache:    newChunkCache(conf.CacheCapacity),
		handlers: make(map[uuid.UUID]*StreamingHandler),
	}
}

// bodySize returns the total file size for a terrain of the given
// dimensions: header plus one record per chunk.
func bodySize(width, height uint32) int64 {
	return format.HeaderLength + int64(width)*int64(height)*format.RecordLength
}

// Width returns the terrain's width in chunks.
func (t *Terrain) Width() uint32 {
	return t.width
}

// Height returns the terrain's height in chunks.
func (t *Terrain) Height() uint32 {
	return t.height
}

// Biomes returns the registry the terrain was opened with.
func (t *Terrain) Biomes() format.BiomeRegistry {
	return t.biomes
}

// Chunk returns the chunk at the given chunk coordinate, reading and
// decoding it from disk on a cache miss. The returned chunk is shared with
// the cache: mutations are picked up by the write-back on eviction or
// close.
func (t *Terrain) Chunk(x, z uint32) (*format.Chunk, error) {
	pos, err := t.checkBounds(x, z)
	if err != nil {
		return nil, err
	}
	if c, ok := t.cache.Get(pos); ok {
		return c, nil
	}

	t.fileMu.Lock()
	defer t.fileMu.Unlock()

	buf := make([]byte, format.RecordLength)
	if _, err := t.f.Seek(format.RecordOffset(pos, t.width), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek chunk (%d,%d): %w", x, z, err)
	}
	if err := format.ReadRecord(t.f, buf); err != nil {
		return nil, fmt.Errorf("chunk (%d,%d): %w", x, z, err)
	}
	c, err := format.DecodeChunk(buf, t.biomes)
	if err != nil {
		return nil, fmt.Errorf("chunk (%d,%d): %w", x, z, err)
	}
	if ev, ok := t.cache.Put(pos, c); ok {
		if err := t.writeRecord(ev.pos, ev.chunk); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SetChunk stores a chunk at the given chunk coordinate. The chunk lands in
// the cache only; it reaches disk when it is evicted or when the terrain is
// closed.
func (t *Terrain) SetChunk(x, z uint32, c *format.Chunk) error {
	pos, err := t.checkBounds(x, z)
	if err != nil {
		return err
	}
	if !t.writable {
		return ErrReadOnly
	}
	ev, ok := t.cache.Put(pos, c)
	if !ok {
		return nil
	}

	t.fileMu.Lock()
	defer t.fileMu.Unlock()
	return t.writeRecord(ev.pos, ev.chunk)
}

// Vertex returns the vertex at the given global vertex coordinate. The
// vertex grid is the chunk grid at 8x resolution.
func (t *Terrain) Vertex(vx, vz uint32) (format.Vertex, error) {
	c, err := t.Chunk(vx/format.ChunkSize, vz/format.ChunkSize)
	if err != nil {
		return format.Vertex{}, err
	}
	return c.Vertex(int(vx%format.ChunkSize), int(vz%format.ChunkSize))
}

// SetVertex stores a vertex at the given global vertex coordinate, loading
// the owning chunk through the cache. The material must be present in the
// owning chunk's palette for the change to survive write-back.
func (t *Terrain) SetVertex(vx, vz uint32, v format.Vertex) error {
	if !t.writable {
		return ErrReadOnly
	}
	c, err := t.Chunk(vx/format.ChunkSize, vz/format.ChunkSize)
	if err != nil {
		return err
	}
	return c.SetVertex(int(vx%format.ChunkSize), int(vz%format.ChunkSize), v)
}

// Sample returns the biome settings at a world position, bilinearly
// aggregated over the containing chunk and its in-bounds forward
// neighbours.
func (t *Terrain) Sample(p mgl64.Vec2) (format.BiomeSettings, error) {
	return t.SampleChunk(format.WorldToChunk(p))
}

// SampleChunk aggregates biome settings around the chunk at pos: the
// centre's settings plus those of the (+x,0), (0,+z), (+x,+z) and (-x,+z)
// neighbours that exist, divided by the number of contributors.
func (t *Terrain) SampleChunk(pos format.ChunkCoord) (format.BiomeSettings, error) {
	settings, err := t.settingsAt(pos)
	if err != nil {
		return nil, err
	}
	samples := 1

	neighbours := []format.ChunkCoord{
		{X: pos.X + 1, Z: pos.Z},
		{X: pos.X, Z: pos.Z + 1},
		{X: pos.X + 1, Z: pos.Z + 1},
	}
	if pos.X > 0 {
		neighbours = append(neighbours, format.ChunkCoord{X: pos.X - 1, Z: pos.Z + 1})
	}
	for _, n := range neighbours {
		if n.X >= t.width || n.Z >= t.height {
			continue
		}
		s, err := t.settingsAt(n)
		if err != nil {
			return nil, err
		}
		settings = settings.Add(s)
		samples++
	}
	return settings.Divide(samples), nil
}

// settingsAt resolves the settings of the biome of the chunk at pos.
func (t *Terrain) settingsAt(pos format.ChunkCoord) (format.BiomeSettings, error) {
	c, err := t.Chunk(pos.X, pos.Z)
	if err != nil {
		return nil, err
	}
	b, err := t.biomes.Biome(c.Biome())
	if err != nil {
		return nil, err
	}
	return b.Settings, nil
}

// OnChunkLoaded registers a callback invoked for every chunk a streaming
// region load visits. Callbacks run on the worker goroutine after the file
// lock has been released; slow subscribers delay the next pass, not I/O.
func (t *Terrain) OnChunkLoaded(fn func(format.ChunkCoord)) {
	t.callbackMu.Lock()
	t.callbacks = append(t.callbacks, fn)
	t.callbackMu.Unlock()
}

// notifyLoaded dispatches ChunkLoaded callbacks for the visited chunks in
// sweep order.
func (t *Terrain) notifyLoaded(visited []format.ChunkCoord) {
	t.callbackMu.Lock()
	callbacks := make([]func(format.ChunkCoord), len(t.callbacks))
	copy(callbacks, t.callbacks)
	t.callbackMu.Unlock()

	for _, pos := range visited {
		for _, fn := range callbacks {
			fn(pos)
		}
	}
}

// loadRegion reads every chunk of the rectangle radius world units around
// center into the cache, skipping records already resident. The whole sweep
// runs under one file lock acquisition: one seek per region row, sequential
// reads within a row, with cache hits advancing the cursor by exactly one
// record. Evictees accumulated during the sweep are written back before the
// lock is released.
func (t *Terrain) loadRegion(center mgl64.Vec2, radius uint8) ([]format.ChunkCoord, error) {
	r := float64(radius)
	topLeft := format.ChunkCoord{
		X: clampedChunk(center.X() - r),
		Z: clampedChunk(center.Y() - r),
	}
	bottomRight := format.WorldToChunk(center.Add(mgl64.Vec2{r, r}))
	if topLeft.X >= t.width || topLeft.Z >= t.height {
		return nil, nil
	}
	if bottomRight.X >= t.width {
		bottomRight.X = t.width - 1
	}
	if bottomRight.Z >= t.height {
		bottomRight.Z = t.height - 1
	}

	span := bottomRight.Sub(topLeft).Add(format.ChunkCoord{X: 1, Z: 1})
	visited := make([]format.ChunkCoord, 0, span.Area())
	var evicted []cacheEntry
	buf := make([]byte, format.RecordLength)

	t.fileMu.Lock()
	defer t.fileMu.Unlock()

	for z := topLeft.Z; z <= bottomRight.Z; z++ {
		row := format.ChunkCoord{X: topLeft.X, Z: z}
		if _, err := t.f.Seek(format.RecordOffset(row, t.width), io.SeekStart); err != nil {
			return visited, fmt.Errorf("seek region row %d: %w", z, err)
		}
		for x := topLeft.X; x <= bottomRight.X; x++ {
			pos := format.ChunkCoord{X: x, Z: z}
			if _, ok := t.cache.Get(pos); ok {
				if _, err := t.f.Seek(format.RecordLength, io.SeekCurrent); err != nil {
					return visited, fmt.Errorf("skip chunk (%d,%d): %w", x, z, err)
				}
			} else {
				if err := format.ReadRecord(t.f, buf); err != nil {
					return visited, fmt.Errorf("chunk (%d,%d): %w", x, z, err)
				}
				c, err := format.DecodeChunk(buf, t.biomes)
				if err != nil {
					return visited, fmt.Errorf("chunk (%d,%d): %w", x, z, err)
				}
				if ev, ok := t.cache.Put(pos, c); ok {
					evicted = append(evicted, ev)
				}
			}
			visited = append(visited, pos)
		}
	}

	for _, ev := range evicted {
		if err := t.writeRecord(ev.pos, ev.chunk); err != nil {
			return visited, err
		}
	}
	return visited, nil
}

// clampedChunk maps a world-space component to a chunk index, clamping
// below zero so a radius reaching past the world edge does not wrap the
// unsigned coordinate.
func clampedChunk(v float64) uint32 {
	return uint32(math.Floor(math.Max(0, v) / format.ChunkWorldSize))
}

// writeRecord encodes a chunk and writes it to its record. The caller must
// hold fileMu. Evictees on a read-only terrain are dropped silently, so
// changes made directly to a chunk returned by Chunk are lost there.
func (t *Terrain) writeRecord(pos format.ChunkCoord, c *format.Chunk) error {
	if !t.writable {
		return nil
	}
	buf := make([]byte, format.RecordLength)
	if err := c.Encode(buf); err != nil {
		return fmt.Errorf("encode chunk (%d,%d): %w", pos.X, pos.Z, err)
	}
	if _, err := t.f.Seek(format.RecordOffset(pos, t.width), io.SeekStart); err != nil {
		return fmt.Errorf("seek chunk (%d,%d): %w", pos.X, pos.Z, err)
	}
	if _, err := t.f.Write(buf); err != nil {
		return fmt.Errorf("write chunk (%d,%d): %w", pos.X, pos.Z, err)
	}
	return nil
}

// checkBounds validates a chunk coordinate against the terrain dimensions
// and rejects use after Close.
func (t *Terrain) checkBounds(x, z uint32) (format.ChunkCoord, error) {
	if t.closed.Load() {
		return format.ChunkCoord{}, ErrClosed
	}
	if x >= t.width || z >= t.height {
		return format.ChunkCoord{}, fmt.Errorf("%w: chunk (%d,%d) outside %dx%d terrain",
			format.ErrOutOfRange, x, z, t.width, t.height)
	}
	return format.ChunkCoord{X: x, Z: z}, nil
}

// Close stops the streaming worker, flushes every cached chunk to disk in
// MRU-to-LRU order and closes the file. No operations are valid afterwards.
// Close is idempotent; only the first call does any work.
func (t *Terrain) Close() error {
	if !t.closed.CAS(false, true) {
		return nil
	}
	t.stopWorker()

	t.fileMu.Lock()
	defer t.fileMu.Unlock()

	var firstErr error
	if t.writable {
		for _, e := range t.cache.Entries() {
			if err := t.writeRecord(e.pos, e.chunk); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := t.f.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close terrain: %w", err)
	}
	return firstErr
}
