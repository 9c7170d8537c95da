package format

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// BiomeSettings is the opaque per-biome payload consumed by bilinear
// sampling. Implementations must not mutate the receiver: both operations
// return a new value, so registry entries stay constant while samples
// accumulate.
type BiomeSettings interface {
	// Add returns the aggregate of the receiver and other. The operation is
	// commutative and associative.
	Add(other BiomeSettings) BiomeSettings
	// Divide returns the receiver divided pointwise by n, n >= 1.
	Divide(n int) BiomeSettings
}

// Biome couples a material palette with its sampling settings. The chunk
// codec reads only the palette; settings feed bilinear sampling.
type Biome struct {
	Palette  MaterialPalette
	Settings BiomeSettings
}

// BiomeRegistry is a read-only table mapping biome IDs to biomes. Every
// biome ID stored in a terrain file must resolve in the registry used to
// open it.
type BiomeRegistry struct {
	biomes []Biome
}

// NewBiomeRegistry constructs a registry from at most MaxBiome+1 biomes.
func NewBiomeRegistry(biomes []Biome) (BiomeRegistry, error) {
	if len(biomes) == 0 || len(biomes) > MaxBiome+1 {
		return BiomeRegistry{}, fmt.Errorf("%w: registry holds %d biomes, want 1..%d", ErrMalformedInput, len(biomes), MaxBiome+1)
	}
	return BiomeRegistry{biomes: slices.Clone(biomes)}, nil
}

// Biome returns the biome registered under id.
func (r BiomeRegistry) Biome(id uint8) (Biome, error) {
	if int(id) >= len(r.biomes) {
		return Biome{}, fmt.Errorf("%w: biome %d not registered", ErrOutOfRange, id)
	}
	return r.biomes[id], nil
}

// Len returns the number of registered biomes.
func (r BiomeRegistry) Len() int {
	return len(r.biomes)
}

// ScalarSettings is a BiomeSettings implementation holding a single scalar,
// for biomes whose sampled quantity is one number.
type ScalarSettings float64

// Add returns the sum of the two scalars.
func (s ScalarSettings) Add(other BiomeSettings) BiomeSettings {
	return s + other.(ScalarSettings)
}

// Divide returns the scalar divided by n.
func (s ScalarSettings) Divide(n int) BiomeSettings {
	return s / ScalarSettings(n)
}
