package format

import "fmt"

// Chunk is a fixed 8x8 grid of vertices with its biome, base height anchor
// and material palette. Vertices are stored row-major: linear index x*8+y.
//
// The chunk does not enforce that vertex materials stay within its palette;
// encoding a vertex whose material is absent corrupts that vertex's byte.
// Callers mutating vertices must keep the palette invariant themselves.
type Chunk struct {
	vertices   [ChunkArea]Vertex
	palette    MaterialPalette
	biome      uint8
	baseHeight uint8
}

// NewChunk creates a chunk with the given biome, base height and palette.
func NewChunk(biome, baseHeight uint8, palette MaterialPalette) (*Chunk, error) {
	c := &Chunk{palette: palette}
	if err := c.SetBiome(biome); err != nil {
		return nil, err
	}
	if err := c.SetBaseHeight(baseHeight); err != nil {
		return nil, err
	}
	return c, nil
}

// Biome returns the chunk's biome ID.
func (c *Chunk) Biome() uint8 {
	return c.biome
}

// SetBiome sets the chunk's biome ID.
func (c *Chunk) SetBiome(id uint8) error {
	if id > MaxBiome {
		return fmt.Errorf("%w: biome %d exceeds %d", ErrOutOfRange, id, MaxBiome)
	}
	c.biome = id
	return nil
}

// BaseHeight returns the chunk's base height anchor. Vertex heights are
// stored as signed offsets from BaseHeight()*ChunkWorldSize.
func (c *Chunk) BaseHeight() uint8 {
	return c.baseHeight
}

// SetBaseHeight sets the chunk's base height anchor.
func (c *Chunk) SetBaseHeight(h uint8) error {
	if h > MaxBaseHeight {
		return fmt.Errorf("%w: base height %d exceeds %d", ErrOutOfRange, h, MaxBaseHeight)
	}
	c.baseHeight = h
	return nil
}

// Palette returns the chunk's material palette.
func (c *Chunk) Palette() MaterialPalette {
	return c.palette
}

// SetPalette replaces the chunk's material palette. Vertices keep their
// material IDs; any that fall outside the new palette break the encoding
// invariant.
func (c *Chunk) SetPalette(p MaterialPalette) {
	c.palette = p
}

// Vertex returns the vertex at the local grid position (x, y).
func (c *Chunk) Vertex(x, y int) (Vertex, error) {
	if x < 0 || x >= ChunkSize || y < 0 || y >= ChunkSize {
		return Vertex{}, fmt.Errorf("%w: vertex (%d,%d)", ErrOutOfRange, x, y)
	}
	return c.vertices[x*ChunkSize+y], nil
}

// SetVertex stores a vertex at the local grid position (x, y).
func (c *Chunk) SetVertex(x, y int, v Vertex) error {
	if x < 0 || x >= ChunkSize || y < 0 || y >= ChunkSize {
		return fmt.Errorf("%w: vertex (%d,%d)", ErrOutOfRange, x, y)
	}
	c.vertices[x*ChunkSize+y] = v
	return nil
}

// Fill sets every vertex of the chunk to v.
func (c *Chunk) Fill(v Vertex) {
	for i := range c.vertices {
		c.vertices[i] = v
	}
}

// Equal reports whether two chunks hold the same biome, base height,
// palette and vertices.
func (c *Chunk) Equal(o *Chunk) bool {
	return c.biome == o.biome && c.baseHeight == o.baseHeight &&
		c.palette == o.palette && c.vertices == o.vertices
}

// Encode packs the chunk into buf, which must be exactly RecordLength
// bytes. Byte 0 carries the base height in bits [7:3] and the biome in bits
// [2:0]; bytes 1..64 carry the vertices in linear order.
func (c *Chunk) Encode(buf []byte) error {
	if len(buf) != RecordLength {
		return fmt.Errorf("%w: record buffer is %d bytes, want %d", ErrMalformedInput, len(buf), RecordLength)
	}
	buf[0] = c.baseHeight<<3 | c.biome
	for i, v := range c.vertices {
		buf[1+i] = EncodeVertex(v, c.baseHeight, c.palette)
	}
	return nil
}

// DecodeChunk unpacks a chunk record. The chunk's palette is resolved from
// the biome registry using the biome ID in the prefix byte.
func DecodeChunk(buf []byte, biomes BiomeRegistry) (*Chunk, error) {
	if len(buf) != RecordLength {
		return nil, fmt.Errorf("%w: record buffer is %d bytes, want %d", ErrMalformedInput, len(buf), RecordLength)
	}
	c := &Chunk{
		biome:      buf[0] & 0x07,
		baseHeight: buf[0] >> 3 & 0x1F,
	}
	biome, err := biomes.Biome(c.biome)
	if err != nil {
		return nil, err
	}
	c.palette = biome.Palette
	for i := range c.vertices {
		c.vertices[i] = DecodeVertex(buf[1+i], c.baseHeight, c.palette)
	}
	return c, nil
}
