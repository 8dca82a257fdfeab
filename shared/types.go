package shared

import "io"

// EWFReader is the read side of an opened image: a seekable view over the
// acquired media.
type EWFReader interface {
	io.ReadSeeker
	io.ReaderAt
	Size() int64
	Metadata() map[string]interface{}
}

// EWFWriter is the write side: a byte stream that lands in segment files.
type EWFWriter interface {
	io.WriteCloser
}
