package tinyterrain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/sandertv/gophertunnel/minecraft/nbt"

	"github.com/oriumgames/tinyterrain/format"
)

const (
	// SnapshotMagic is the snapshot stream identifier "Tiny".
	SnapshotMagic = 0x54696E79

	// SnapshotVersion is the latest supported snapshot stream version.
	SnapshotVersion = 1

	// Compression types used in the snapshot header.
	compressionNone = 0
	compressionZstd = 1
)

// CompressionLevel represents the compression level for snapshot export.
type CompressionLevel int

const (
	// CompressionLevelNone disables compression.
	CompressionLevelNone CompressionLevel = iota
	// CompressionLevelFast uses fast compression.
	CompressionLevelFast
	// CompressionLevelDefault uses default compression.
	CompressionLevelDefault
	// CompressionLevelBest uses best compression.
	CompressionLevelBest
)

// zstdLevel maps a CompressionLevel to its zstd encoder level.
func (l CompressionLevel) zstdLevel() zstd.EncoderLevel {
	switch l {
	case CompressionLevelFast:
		return zstd.SpeedFastest
	case CompressionLevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// ExportSnapshot writes the whole terrain to w as a single snapshot stream:
// a fixed header carrying an xxhash64 checksum of the uncompressed payload,
// then NBT metadata, the grid dimensions and every chunk record, optionally
// zstd-compressed. Cached chunks are flushed to the file first so the
// snapshot reflects all pending writes.
//
// meta is an arbitrary NBT-encodable map travelling with the snapshot; nil
// is allowed.
func (t *Terrain) ExportSnapshot(w io.Writer, level CompressionLevel, meta map[string]any) error {
	if t.closed.Load() {
		return ErrClosed
	}

	var metaBuf bytes.Buffer
	if len(meta) > 0 {
		if err := nbt.NewEncoder(&metaBuf).Encode(meta); err != nil {
			return fmt.Errorf("encode snapshot metadata: %w", err)
		}
	}

	t.fileMu.Lock()
	defer t.fileMu.Unlock()

	if t.writable {
		for _, e := range t.cache.Entries() {
			if err := t.writeRecord(e.pos, e.chunk); err != nil {
				return err
			}
		}
	}

	// First pass: checksum the uncompressed payload.
	digest := xxhash.New()
	if err := t.writePayload(digest, metaBuf.Bytes()); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, uint32(SnapshotMagic)); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, int16(SnapshotVersion)); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	compression := uint8(compressionNone)
	if level != CompressionLevelNone {
		compression = compressionZstd
	}
	if err := binary.Write(w, binary.BigEndian, compression); err != nil {
		return fmt.Errorf("write compression: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, digest.Sum64()); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}

	// Second pass: the payload itself, through the compressor if one is
	// requested.
	var dataWriter io.Writer = w
	var zstdWriter *zstd.Encoder
	if compression == compressionZstd {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level.zstdLevel()))
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		zstdWriter = enc
		dataWriter = enc
	}
	if err := t.writePayload(dataWriter, metaBuf.Bytes()); err != nil {
		if zstdWriter != nil {
			_ = zstdWriter.Close()
		}
		return err
	}
	if zstdWriter != nil {
		if err := zstdWriter.Close(); err != nil {
			return fmt.Errorf("close zstd stream: %w", err)
		}
	}
	return nil
}

// writePayload streams the uncompressed snapshot payload to w: metadata,
// dimensions, then every record straight from the file. The caller must
// hold fileMu.
func (t *Terrain) writePayload(w io.Writer, meta []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(meta))); err != nil {
		return fmt.Errorf("write metadata length: %w", err)
	}
	if _, err := w.Write(meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, t.width); err != nil {
		return fmt.Errorf("write width: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, t.height); err != nil {
		return fmt.Errorf("write height: %w", err)
	}
	if _, err := t.f.Seek(format.HeaderLength, io.SeekStart); err != nil {
		return fmt.Errorf("seek records: %w", err)
	}
	records := int64(t.width) * int64(t.height) * format.RecordLength
	if _, err := io.CopyN(w, t.f, records); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}

// ImportSnapshot reads a snapshot stream and materialises it as a new
// terrain file at path, returning the opened terrain and the snapshot's
// metadata. Every record is decoded against the registry before it is
// written, so a snapshot referencing unregistered biomes is rejected. The
// partially written file is removed on failure.
func ImportSnapshot(r io.Reader, path string, biomes format.BiomeRegistry) (*Terrain, map[string]any, error) {
	var conf Config
	return conf.ImportSnapshot(r, path, biomes)
}

// ImportSnapshot reads a snapshot stream and materialises it as a new
// terrain file at path.
func (conf Config) ImportSnapshot(r io.Reader, path string, biomes format.BiomeRegistry) (*Terrain, map[string]any, error) {
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != SnapshotMagic {
		return nil, nil, fmt.Errorf("%w: magic 0x%08X, want 0x%08X", format.ErrMalformedInput, magic, SnapshotMagic)
	}
	var version int16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, nil, fmt.Errorf("read version: %w", err)
	}
	if version > SnapshotVersion {
		return nil, nil, fmt.Errorf("%w: snapshot version %d, max supported %d", format.ErrMalformedInput, version, SnapshotVersion)
	}
	var compression uint8
	if err := binary.Read(r, binary.BigEndian, &compression); err != nil {
		return nil, nil, fmt.Errorf("read compression: %w", err)
	}
	var checksum uint64
	if err := binary.Read(r, binary.BigEndian, &checksum); err != nil {
		return nil, nil, fmt.Errorf("read checksum: %w", err)
	}

	var dataReader io.Reader = r
	if compression == compressionZstd {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		dataReader = dec
	}
	digest := xxhash.New()
	dataReader = io.TeeReader(dataReader, digest)

	meta, width, height, err := readSnapshotHeader(dataReader)
	if err != nil {
		return nil, nil, err
	}

	t, err := conf.Create(path, width, height, biomes)
	if err != nil {
		return nil, nil, err
	}
	if err := t.importRecords(dataReader, digest, checksum); err != nil {
		_ = t.Close()
		_ = os.Remove(path)
		return nil, nil, err
	}
	return t, meta, nil
}

// readSnapshotHeader reads the metadata block and grid dimensions from the
// start of a snapshot payload.
func readSnapshotHeader(r io.Reader) (meta map[string]any, width, height uint32, err error) {
	var metaLen uint32
	if err := binary.Read(r, binary.BigEndian, &metaLen); err != nil {
		return nil, 0, 0, fmt.Errorf("read metadata length: %w", err)
	}
	if metaLen > 1<<24 {
		return nil, 0, 0, fmt.Errorf("%w: metadata block of %d bytes", format.ErrMalformedInput, metaLen)
	}
	if metaLen > 0 {
		metaBuf := make([]byte, metaLen)
		if _, err := io.ReadFull(r, metaBuf); err != nil {
			return nil, 0, 0, fmt.Errorf("read metadata: %w", err)
		}
		if err := nbt.NewDecoder(bytes.NewReader(metaBuf)).Decode(&meta); err != nil {
			return nil, 0, 0, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if err := binary.Read(r, binary.BigEndian, &width); err != nil {
		return nil, 0, 0, fmt.Errorf("read width: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &height); err != nil {
		return nil, 0, 0, fmt.Errorf("read height: %w", err)
	}
	return meta, width, height, nil
}

// importRecords streams the snapshot's records into the terrain file,
// validating each against the biome registry, then verifies the payload
// checksum.
func (t *Terrain) importRecords(r io.Reader, digest hash.Hash64, checksum uint64) error {
	t.fileMu.Lock()
	defer t.fileMu.Unlock()

	if _, err := t.f.Seek(format.HeaderLength, io.SeekStart); err != nil {
		return fmt.Errorf("seek records: %w", err)
	}
	buf := make([]byte, format.RecordLength)
	total := int64(t.width) * int64(t.height)
	for i := int64(0); i < total; i++ {
		if err := format.ReadRecord(r, buf); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, err := format.DecodeChunk(buf, t.biomes); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, err := t.f.Write(buf); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	if digest.Sum64() != checksum {
		return fmt.Errorf("%w: payload checksum 0x%016X, want 0x%016X", format.ErrMalformedInput, digest.Sum64(), checksum)
	}
	return nil
}
