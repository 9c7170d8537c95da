package tinyterrain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/oriumgames/tinyterrain/format"
)

// testBiomes builds a registry of four biomes sharing the [1,2,3,4] palette
// with scalar settings 10, 20, 30 and 40.
func testBiomes(t *testing.T) format.BiomeRegistry {
	t.Helper()
	palette, err := format.PaletteFromMaterials([]uint8{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("PaletteFromMaterials: %v", err)
	}
	biomes := make([]format.Biome, 4)
	for i := range biomes {
		biomes[i] = format.Biome{Palette: palette, Settings: format.ScalarSettings((i + 1) * 10)}
	}
	reg, err := format.NewBiomeRegistry(biomes)
	if err != nil {
		t.Fatalf("NewBiomeRegistry: %v", err)
	}
	return reg
}

// terrainChunk builds a chunk with the given biome whose surface sits
// within its base height window.
func terrainChunk(t *testing.T, reg format.BiomeRegistry, biome, baseHeight uint8) *format.Chunk {
	t.Helper()
	b, err := reg.Biome(biome)
	if err != nil {
		t.Fatalf("Biome(%d): %v", biome, err)
	}
	c, err := format.NewChunk(biome, baseHeight, b.Palette)
	if err != nil {
		t.Fatalf("NewChunk: %v", err)
	}
	c.Fill(format.Vertex{Height: int16(int(baseHeight) * format.ChunkWorldSize), Material: b.Palette.Get(0)})
	return c
}

func TestCreateOpen(t *testing.T) {
	reg := testBiomes(t)
	path := filepath.Join(t.TempDir(), "world.tt")

	terr, err := Create(path, 3, 2, reg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if terr.Width() != 3 || terr.Height() != 2 {
		t.Errorf("dimensions = %dx%d, want 3x2", terr.Width(), terr.Height())
	}
	if err := terr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	terr, err = Open(path, reg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if terr.Width() != 3 || terr.Height() != 2 {
		t.Errorf("reopened dimensions = %dx%d, want 3x2", terr.Width(), terr.Height())
	}
	if err := terr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestCreateExisting(t *testing.T) {
	reg := testBiomes(t)
	path := filepath.Join(t.TempDir(), "world.tt")

	terr, err := Create(path, 1, 1, reg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer terr.Close()

	if _, err := Create(path, 1, 1, reg); !errors.Is(err, os.ErrExist) {
		t.Errorf("Create over existing file = %v, want ErrExist", err)
	}
}

func TestOpenMissing(t *testing.T) {
	reg := testBiomes(t)
	if _, err := Open(filepath.Join(t.TempDir(), "nope.tt"), reg); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open missing file = %v, want ErrNotExist", err)
	}
}

func TestOpenTruncated(t *testing.T) {
	reg := testBiomes(t)
	path := filepath.Join(t.TempDir(), "short.tt")
	if err := os.WriteFile(path, []byte{2, 0, 0, 0, 2, 0, 0, 0, 1, 2, 3}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, reg); !errors.Is(err, format.ErrMalformedInput) {
		t.Errorf("Open truncated file = %v, want ErrMalformedInput", err)
	}
}

func TestChunkBounds(t *testing.T) {
	reg := testBiomes(t)
	terr, err := Create(filepath.Join(t.TempDir(), "world.tt"), 2, 2, reg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer terr.Close()

	if _, err := terr.Chunk(2, 0); !errors.Is(err, format.ErrOutOfRange) {
		t.Errorf("Chunk(2,0) = %v, want ErrOutOfRange", err)
	}
	if err := terr.SetChunk(0, 2, terrainChunk(t, reg, 0, 0)); !errors.Is(err, format.ErrOutOfRange) {
		t.Errorf("SetChunk(0,2) = %v, want ErrOutOfRange", err)
	}
}

// TestEvictionWriteBack covers the S3 layout scenario: with a single cache
// slot, writing a second chunk evicts and persists the first, and both land
// at their computed offsets.
func TestEvictionWriteBack(t *testing.T) {
	reg := testBiomes(t)
	path := filepath.Join(t.TempDir(), "world.tt")

	terr, err := Config{CacheCapacity: 1}.Create(path, 2, 2, reg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	chunkA := terrainChunk(t, reg, 1, 10)
	chunkB := terrainChunk(t, reg, 2, 20)
	if err := terr.SetChunk(0, 0, chunkA); err != nil {
		t.Fatalf("SetChunk(0,0): %v", err)
	}
	if err := terr.SetChunk(1, 0, chunkB); err != nil {
		t.Fatalf("SetChunk(1,0): %v", err)
	}

	// A was evicted and must already be on disk at offset 8 even though the
	// terrain is still open; B is only cached.
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	buf := make([]byte, format.RecordLength)
	if _, err := f.ReadAt(buf, 8); err != nil {
		t.Fatalf("read record at 8: %v", err)
	}
	got, err := format.DecodeChunk(buf, reg)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if !got.Equal(chunkA) {
		t.Error("record at offset 8 does not decode to chunk A")
	}

	if err := terr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := f.ReadAt(buf, 73); err != nil {
		t.Fatalf("read record at 73: %v", err)
	}
	if got, err = format.DecodeChunk(buf, reg); err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if !got.Equal(chunkB) {
		t.Error("record at offset 73 does not decode to chunk B")
	}
}

// TestFlushOnClose covers S4: a cached write that never triggered an
// eviction reaches disk when the terrain is closed.
func TestFlushOnClose(t *testing.T) {
	reg := testBiomes(t)
	path := filepath.Join(t.TempDir(), "world.tt")

	terr, err := Create(path, 2, 2, reg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := terrainChunk(t, reg, 3, 7)
	if err := terr.SetChunk(0, 0, want); err != nil {
		t.Fatalf("SetChunk: %v", err)
	}
	if err := terr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	terr, err = Open(path, reg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer terr.Close()
	got, err := terr.Chunk(0, 0)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if !got.Equal(want) {
		t.Error("reopened chunk differs from the one written before Close")
	}
}

func TestOffsetDeterminism(t *testing.T) {
	coords := []format.ChunkCoord{{X: 0, Z: 0}, {X: 1, Z: 0}, {X: 0, Z: 1}, {X: 1, Z: 1}}
	seen := make(map[int64]format.ChunkCoord)
	for _, pos := range coords {
		off := format.RecordOffset(pos, 2)
		if off != format.RecordOffset(pos, 2) {
			t.Fatalf("offset of %v is not stable", pos)
		}
		if prev, ok := seen[off]; ok {
			t.Fatalf("offset %d shared by %v and %v", off, prev, pos)
		}
		seen[off] = pos
	}
}

func TestVertexAccess(t *testing.T) {
	reg := testBiomes(t)
	terr, err := Create(filepath.Join(t.TempDir(), "world.tt"), 2, 2, reg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer terr.Close()

	if err := terr.SetChunk(1, 1, terrainChunk(t, reg, 0, 10)); err != nil {
		t.Fatalf("SetChunk: %v", err)
	}
	// Global vertex (12, 9) lives in chunk (1, 1) at local (4, 1).
	want := format.Vertex{Height: 45, Material: 3}
	if err := terr.SetVertex(12, 9, want); err != nil {
		t.Fatalf("SetVertex: %v", err)
	}
	got, err := terr.Vertex(12, 9)
	if err != nil {
		t.Fatalf("Vertex: %v", err)
	}
	if got != want {
		t.Errorf("Vertex = %+v, want %+v", got, want)
	}

	c, err := terr.Chunk(1, 1)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if v, _ := c.Vertex(4, 1); v != want {
		t.Errorf("chunk-local vertex = %+v, want %+v", v, want)
	}

	if _, err := terr.Vertex(16, 0); !errors.Is(err, format.ErrOutOfRange) {
		t.Errorf("Vertex(16,0) = %v, want ErrOutOfRange", err)
	}
}

// TestSampleCorner covers S6: sampling at chunk (0,0) of a 2x2 terrain
// aggregates the centre and its three in-bounds neighbours.
func TestSampleCorner(t *testing.T) {
	reg := testBiomes(t)
	terr, err := Create(filepath.Join(t.TempDir(), "world.tt"), 2, 2, reg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer terr.Close()

	// Biomes 0..3 carry settings 10, 20, 30, 40.
	layout := map[format.ChunkCoord]uint8{
		{X: 0, Z: 0}: 0,
		{X: 1, Z: 0}: 1,
		{X: 0, Z: 1}: 2,
		{X: 1, Z: 1}: 3,
	}
	for pos, biome := range layout {
		if err := terr.SetChunk(pos.X, pos.Z, terrainChunk(t, reg, biome, 0)); err != nil {
			t.Fatalf("SetChunk(%v): %v", pos, err)
		}
	}

	got, err := terr.SampleChunk(format.ChunkCoord{X: 0, Z: 0})
	if err != nil {
		t.Fatalf("SampleChunk: %v", err)
	}
	if got.(format.ScalarSettings) != 25 {
		t.Errorf("sample = %v, want 25", got)
	}

	// Sampling through a world position resolves the same chunk.
	got, err = terr.Sample(mgl64.Vec2{1, 1})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if got.(format.ScalarSettings) != 25 {
		t.Errorf("world sample = %v, want 25", got)
	}
}

func TestReadOnly(t *testing.T) {
	reg := testBiomes(t)
	path := filepath.Join(t.TempDir(), "world.tt")

	terr, err := Create(path, 2, 2, reg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := terr.SetChunk(0, 0, terrainChunk(t, reg, 1, 5)); err != nil {
		t.Fatalf("SetChunk: %v", err)
	}
	if err := terr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	terr, err = Config{ReadOnly: true}.Open(path, reg)
	if err != nil {
		t.Fatalf("read-only Open: %v", err)
	}
	defer terr.Close()

	if err := terr.SetChunk(0, 0, terrainChunk(t, reg, 0, 0)); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SetChunk on read-only terrain = %v, want ErrReadOnly", err)
	}
	if err := terr.SetVertex(0, 0, format.Vertex{}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SetVertex on read-only terrain = %v, want ErrReadOnly", err)
	}
	c, err := terr.Chunk(0, 0)
	if err != nil {
		t.Fatalf("Chunk on read-only terrain: %v", err)
	}
	if c.Biome() != 1 {
		t.Errorf("biome = %d, want 1", c.Biome())
	}
}

func TestUseAfterClose(t *testing.T) {
	reg := testBiomes(t)
	terr, err := Create(filepath.Join(t.TempDir(), "world.tt"), 1, 1, reg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := terr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := terr.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if _, err := terr.Chunk(0, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Chunk after Close = %v, want ErrClosed", err)
	}
}
