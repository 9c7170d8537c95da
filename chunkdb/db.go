// Package chunkdb implements a leveldb-backed chunk store sharing the
// TinyTerrain record codec. Unlike the flat terrain file it has no fixed
// grid: records are keyed by coordinate, so it suits sparse or unbounded
// worlds at the cost of computed-offset access.
package chunkdb

import (
	"encoding/binary"
	"fmt"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"

	"github.com/oriumgames/tinyterrain/format"
)

// keyChunkRecord tags chunk record keys, leaving room for future per-chunk
// data under the same coordinate prefix.
const keyChunkRecord = 0x2C

// Config holds the optional settings of a DB.
type Config struct {
	// ReadOnly opens the database without write access.
	ReadOnly bool
}

// DB is a leveldb-backed chunk store.
type DB struct {
	conf   Config
	ldb    *leveldb.DB
	dir    string
	biomes format.BiomeRegistry
}

// Open opens or creates a chunk database in the given directory using
// default options.
func Open(dir string, biomes format.BiomeRegistry) (*DB, error) {
	var conf Config
	return conf.Open(dir, biomes)
}

// Open opens or creates a chunk database in the given directory.
func (conf Config) Open(dir string, biomes format.BiomeRegistry) (*DB, error) {
	ldb, err := leveldb.OpenFile(dir, &opt.Options{ReadOnly: conf.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("open chunk db: %w", err)
	}
	return &DB{conf: conf, ldb: ldb, dir: dir, biomes: biomes}, nil
}

// LoadChunk loads and decodes the chunk at pos. If no record exists,
// exists is false with a nil error.
func (db *DB) LoadChunk(pos format.ChunkCoord) (c *format.Chunk, exists bool, err error) {
	data, err := db.ldb.Get(db.index(pos), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	} else if err != nil {
		return nil, true, fmt.Errorf("read chunk (%d,%d): %w", pos.X, pos.Z, err)
	}
	c, err = format.DecodeChunk(data, db.biomes)
	if err != nil {
		return nil, true, fmt.Errorf("chunk (%d,%d): %w", pos.X, pos.Z, err)
	}
	return c, true, nil
}

// StoreChunk encodes and stores the chunk at pos, replacing any existing
// record.
func (db *DB) StoreChunk(pos format.ChunkCoord, c *format.Chunk) error {
	if db.conf.ReadOnly {
		return fmt.Errorf("store chunk (%d,%d): database is read-only", pos.X, pos.Z)
	}
	buf := make([]byte, format.RecordLength)
	if err := c.Encode(buf); err != nil {
		return fmt.Errorf("encode chunk (%d,%d): %w", pos.X, pos.Z, err)
	}
	if err := db.ldb.Put(db.index(pos), buf, nil); err != nil {
		return fmt.Errorf("write chunk (%d,%d): %w", pos.X, pos.Z, err)
	}
	return nil
}

// Close closes the underlying database.
func (db *DB) Close() error {
	if err := db.ldb.Close(); err != nil {
		return fmt.Errorf("close chunk db: %w", err)
	}
	return nil
}

// index returns the database key of the chunk record at pos: both
// coordinates little-endian, followed by the record tag.
func (db *DB) index(pos format.ChunkCoord) []byte {
	key := make([]byte, 9)
	binary.LittleEndian.PutUint32(key[0:4], pos.X)
	binary.LittleEndian.PutUint32(key[4:8], pos.Z)
	key[8] = keyChunkRecord
	return key
}
