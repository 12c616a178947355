package streamer

import "github.com/streamrelay/proxy/pkg/pool"

// chunk wraps a byte slice so it satisfies pool.Resettable - Reset
// clears the length without releasing the backing array. copyBody
// builds a new pool on every call, so a chunk is not shared between
// requests.
type chunk struct {
	buf []byte
}

func (c *chunk) Reset() { c.buf = c.buf[:0] }

func newChunkPool(size int64) *pool.Pool[*chunk] {
	return pool.NewLitePool(func() *chunk {
		return &chunk{buf: make([]byte, size)}
	})
}
