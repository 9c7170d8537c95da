package format

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ChunkCoord is an unsigned 2D chunk coordinate within a terrain's fixed
// grid. X runs along the file's row axis; Z selects the row.
type ChunkCoord struct {
	X, Z uint32
}

// Add returns the componentwise sum of the two coordinates.
func (c ChunkCoord) Add(o ChunkCoord) ChunkCoord {
	return ChunkCoord{c.X + o.X, c.Z + o.Z}
}

// Sub returns the componentwise absolute difference of the two coordinates.
// This is a span computation, not a group subtraction: the result is always
// representable without sign.
func (c ChunkCoord) Sub(o ChunkCoord) ChunkCoord {
	return ChunkCoord{absDiff(c.X, o.X), absDiff(c.Z, o.Z)}
}

// Mul returns the coordinate scaled componentwise by s.
func (c ChunkCoord) Mul(s uint32) ChunkCoord {
	return ChunkCoord{c.X * s, c.Z * s}
}

// Div returns the coordinate divided componentwise by s.
func (c ChunkCoord) Div(s uint32) ChunkCoord {
	return ChunkCoord{c.X / s, c.Z / s}
}

// Less reports whether both components of c are strictly smaller than those
// of o. Together with More this forms a partial order: two coordinates may
// be neither Less nor More than one another.
func (c ChunkCoord) Less(o ChunkCoord) bool {
	return c.X < o.X && c.Z < o.Z
}

// More reports whether both components of c are strictly greater than those
// of o.
func (c ChunkCoord) More(o ChunkCoord) bool {
	return c.X > o.X && c.Z > o.Z
}

// Area returns the number of chunks in the rectangle spanned by the
// coordinate when treated as a size.
func (c ChunkCoord) Area() uint32 {
	return c.X * c.Z
}

// WorldToChunk maps a world-space position to the coordinate of the chunk
// containing it. Chunks are ChunkWorldSize units across. Negative positions
// lie outside every terrain; the unsigned conversion maps them to
// coordinates that fail any subsequent bounds check.
func WorldToChunk(p mgl64.Vec2) ChunkCoord {
	return ChunkCoord{
		X: uint32(math.Floor(p.X() / ChunkWorldSize)),
		Z: uint32(math.Floor(p.Y() / ChunkWorldSize)),
	}
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
