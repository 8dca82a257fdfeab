package shared

import (
	"bytes"
	"compress/zlib"
	"io"
	"sync"
)

// DecompressZlib inflates a zlib stream in one call.
func DecompressZlib(val []byte) ([]byte, error) {
	b := bytes.NewReader(val)

	zr, err := zlib.NewReader(b)
	if err != nil && err != io.EOF {
		return nil, err
	}
	defer zr.Close()

	return io.ReadAll(zr)
}

// ZlibCompressor is a reusable zlib deflater. The output buffer and the
// writer are recycled between Compress calls so the chunk pipeline does not
// build a new deflater per chunk; each call still allocates the returned
// copy of the output.
type ZlibCompressor struct {
	mu sync.Mutex

	buf *bytes.Buffer
	wr  *zlib.Writer
}

func NewZlibCompressor(level int) (*ZlibCompressor, error) {
	buf := bytes.NewBuffer(nil)
	wr, err := zlib.NewWriterLevel(buf, level)
	if err != nil {
		return nil, err
	}
	return &ZlibCompressor{
		buf: buf,
		wr:  wr,
	}, nil
}

func (c *ZlibCompressor) reset() {
	c.buf.Reset()
	c.wr.Reset(c.buf)
}

// Compress deflates val and returns the compressed stream. The returned
// slice is a copy; it stays valid after the next Compress call.
func (c *ZlibCompressor) Compress(val []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.reset()

	_, err := c.wr.Write(val)
	if err != nil {
		_ = c.wr.Close()
		return nil, err
	}

	err = c.wr.Close()
	if err != nil {
		return nil, err
	}

	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out, nil
}
