// Package format implements the bit-packed TinyTerrain chunk codec: a
// 4-entry nibble palette, one-byte vertices encoded relative to their
// chunk's base height, and fixed 65-byte chunk records addressable by
// chunk coordinate.
package format

import "errors"

const (
	// ChunkSize is the number of vertices along each axis of a chunk.
	ChunkSize = 8

	// ChunkArea is the total number of vertices in a chunk.
	ChunkArea = ChunkSize * ChunkSize

	// ChunkWorldSize is the size of a chunk in world units.
	ChunkWorldSize = 4

	// RecordLength is the on-disk size of a chunk record: one prefix byte
	// followed by one byte per vertex.
	RecordLength = 1 + ChunkArea

	// HeaderLength is the on-disk size of a terrain file header: width and
	// height as little-endian uint32.
	HeaderLength = 8

	// PaletteSize is the number of material slots in a palette.
	PaletteSize = 4

	// MaxMaterial is the highest material ID a palette slot can hold.
	MaxMaterial = 15

	// MaxBiome is the highest biome ID a chunk can reference.
	MaxBiome = 7

	// MaxBaseHeight is the highest base height a chunk can anchor at.
	MaxBaseHeight = 31
)

var (
	// ErrOutOfRange is returned when a numeric field is outside its
	// documented domain: material IDs, palette indices, biome IDs, base
	// heights and chunk coordinates.
	ErrOutOfRange = errors.New("value out of range")

	// ErrMalformedInput is returned when a buffer or input sequence has the
	// wrong length for the structure being decoded.
	ErrMalformedInput = errors.New("malformed input")
)
