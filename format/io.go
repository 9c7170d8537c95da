package format

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteHeader writes a terrain file header: width then height, little-endian.
func WriteHeader(w io.Writer, width, height uint32) error {
	var hdr [HeaderLength]byte
	binary.LittleEndian.PutUint32(hdr[0:4], width)
	binary.LittleEndian.PutUint32(hdr[4:8], height)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// ReadHeader reads a terrain file header.
func ReadHeader(r io.Reader) (width, height uint32, err error) {
	var hdr [HeaderLength]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, fmt.Errorf("read header: %w", err)
	}
	return binary.LittleEndian.Uint32(hdr[0:4]), binary.LittleEndian.Uint32(hdr[4:8]), nil
}

// RecordOffset returns the byte offset of the chunk record at pos within a
// terrain file width chunks wide. Records are laid out row-major along the
// x axis.
func RecordOffset(pos ChunkCoord, width uint32) int64 {
	return HeaderLength + int64(pos.X+pos.Z*width)*RecordLength
}

// ReadRecord reads one chunk record from r into buf, which must be exactly
// RecordLength bytes. A short read surfaces as malformed input so truncated
// files are distinguishable from transport errors.
func ReadRecord(r io.Reader, buf []byte) error {
	if len(buf) != RecordLength {
		return fmt.Errorf("%w: record buffer is %d bytes, want %d", ErrMalformedInput, len(buf), RecordLength)
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: truncated chunk record: %v", ErrMalformedInput, err)
		}
		return fmt.Errorf("read record: %w", err)
	}
	return nil
}
