package format

import "fmt"

// MaterialPalette packs four 4-bit material IDs into a single 16-bit map.
// Nibble i occupies bits [4i, 4i+4). Each vertex in a chunk selects one of
// the four slots through a 2-bit index, so a chunk can reference at most
// four distinct materials.
type MaterialPalette uint16

// PaletteFromMaterials constructs a palette from exactly four material IDs.
func PaletteFromMaterials(materials []uint8) (MaterialPalette, error) {
	if len(materials) != PaletteSize {
		return 0, fmt.Errorf("%w: palette needs %d materials, got %d", ErrMalformedInput, PaletteSize, len(materials))
	}
	var p MaterialPalette
	for i, id := range materials {
		if id > MaxMaterial {
			return 0, fmt.Errorf("%w: material %d at slot %d exceeds %d", ErrMalformedInput, id, i, MaxMaterial)
		}
		p |= MaterialPalette(id) << (i * 4)
	}
	return p, nil
}

// Get returns the material ID stored in slot i. Slots above 3 read past the
// packed map and yield zero; a negative slot panics on the negative shift.
// Get does not validate, mirroring the raw nibble access it wraps.
func (p MaterialPalette) Get(i int) uint8 {
	return uint8(p>>(i*4)) & 0xF
}

// Set stores the material ID in slot i, replacing the previous entry.
func (p *MaterialPalette) Set(i int, id uint8) error {
	if i < 0 || i >= PaletteSize {
		return fmt.Errorf("%w: palette slot %d", ErrOutOfRange, i)
	}
	if id > MaxMaterial {
		return fmt.Errorf("%w: material %d exceeds %d", ErrOutOfRange, id, MaxMaterial)
	}
	*p &^= 0xF << (i * 4)
	*p |= MaterialPalette(id) << (i * 4)
	return nil
}

// IndexOf returns the first slot holding the material ID passed, or -1 if
// the palette does not contain it.
func (p MaterialPalette) IndexOf(id uint8) int {
	for i := 0; i < PaletteSize; i++ {
		if p.Get(i) == id {
			return i
		}
	}
	return -1
}

// Materials returns the four material IDs in slot order.
func (p MaterialPalette) Materials() [PaletteSize]uint8 {
	var m [PaletteSize]uint8
	for i := range m {
		m[i] = p.Get(i)
	}
	return m
}
