package ewf

import (
	"encoding/binary"
	"io"

	"github.com/dfirkit/go-ewf/shared"
)

var _ shared.EWFReader = &Handle{}

// Size returns the logical media size in bytes.
func (h *Handle) Size() int64 {
	return h.img.media.Size()
}

// Metadata returns the parsed header values keyed by their long names.
func (h *Handle) Metadata() map[string]interface{} {
	md := make(map[string]interface{})
	for _, id := range h.headerValues.Identifiers() {
		v, _ := h.headerValues.Get(id)
		if identifier, ok := AcquiredMediaIdentifiers[EWFMediaInfo(id)]; ok {
			md[identifier] = v
		} else {
			md[id] = v
		}
	}
	return md
}

// Seek positions the next Read. Offsets beyond the media size are allowed;
// reads there return EOF.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	if err := h.requireReadable("seek"); err != nil {
		return 0, err
	}

	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = h.position + offset
	case io.SeekEnd:
		newPos = h.Size() + offset
	default:
		return 0, invalidf("read", "invalid whence value %d", whence)
	}

	if newPos < 0 {
		return 0, invalidf("read", "negative position %d", newPos)
	}

	h.position = newPos
	return newPos, nil
}

func (h *Handle) Read(p []byte) (n int, err error) {
	n, err = h.ReadAt(p, h.position)
	h.position += int64(n)
	return
}

// ReadAt reads media bytes starting at off. Short reads happen only at the
// end of the media.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	if err := h.requireReadable("read"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, invalidf("read", "negative offset %d", off)
	}

	size := h.Size()
	if off >= size {
		return 0, io.EOF
	}

	want := len(p)
	if off+int64(want) > size {
		want = int(size - off)
	}

	chunkSize := int64(h.img.media.ChunkSize())
	n := 0
	for n < want {
		pos := off + int64(n)
		chunk := uint64(pos / chunkSize)
		intra := pos % chunkSize

		buf, err := h.readChunk(chunk)
		if err != nil {
			return n, err
		}
		if intra >= int64(len(buf)) {
			return n, corruptf("read", "chunk %d decoded to %d bytes, need offset %d", chunk, len(buf), intra)
		}

		n += copy(p[n:want], buf[intra:])
	}

	if want < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// readChunk returns the decoded payload of one chunk, consulting the cache
// first. Uncompressed chunks are verified against their trailing checksum;
// a mismatch is recorded in the CRC error list and, under the wipe policy,
// zeroes the affected sectors instead of failing the read.
func (h *Handle) readChunk(chunk uint64) ([]byte, error) {
	if cached, ok := h.chunkCache.Get(chunk); ok {
		return cached.([]byte), nil
	}

	entry, err := h.offsets.entry(chunk)
	if err != nil {
		return nil, err
	}

	fh, err := h.segmentReader(entry)
	if err != nil {
		return nil, err
	}

	if _, err := fh.Seek(entry.fileOffset, io.SeekStart); err != nil {
		return nil, wrapIO("read", err)
	}
	raw := make([]byte, entry.size)
	if _, err := io.ReadFull(fh, raw); err != nil {
		return nil, wrapIO("read", err)
	}

	var data []byte
	if entry.compressed {
		data, err = shared.DecompressZlib(raw)
		if err != nil {
			if !h.wipeOnError {
				return nil, newErrorf(ErrChunkCorrupt, "read", "chunk %d does not inflate: %v", chunk, err)
			}
			// wipe policy: a destroyed chunk reads as zeros and is
			// recorded, like a checksum failure
			data = make([]byte, h.chunkPayloadSize(chunk))
			h.recordCRCError(chunk)
		}
	} else {
		if entry.size <= ChecksumSize {
			return nil, corruptf("read", "chunk %d stored in %d bytes", chunk, entry.size)
		}
		data = raw[:len(raw)-ChecksumSize]
		stored := binary.LittleEndian.Uint32(raw[len(raw)-ChecksumSize:])
		if stored != shared.NewChunkSum(data) {
			h.recordCRCError(chunk)
			if h.wipeOnError {
				data = make([]byte, len(data))
			}
		}
	}

	h.chunkCache.Add(chunk, data)
	return data, nil
}

// chunkPayloadSize is the decoded size of a chunk: the chunk size, except
// for a shorter final chunk.
func (h *Handle) chunkPayloadSize(chunk uint64) int64 {
	chunkSize := int64(h.img.media.ChunkSize())
	start := int64(chunk) * chunkSize
	remain := h.Size() - start
	if remain < chunkSize {
		return remain
	}
	return chunkSize
}

func (h *Handle) recordCRCError(chunk uint64) {
	start := chunk * uint64(h.img.media.SectorsPerChunk)
	h.crcErrors.add(start, h.img.media.SectorsPerChunk)
	h.logger.Warn().Uint64("chunk", chunk).Uint64("sector", start).Msg("chunk checksum mismatch")
}

// segmentReader resolves the stream holding a chunk entry, from the primary
// or the delta segment table.
func (h *Handle) segmentReader(entry chunkEntry) (io.ReadSeeker, error) {
	table := h.segments
	if entry.delta {
		table = h.deltaSegments
	}
	if table == nil || int(entry.segment) >= len(table.Segments) {
		return nil, newErrorf(ErrChunkUnavailable, "read", "segment %d is not open", entry.segment)
	}
	return table.Segments[entry.segment].fh, nil
}

func (h *Handle) requireReadable(op string) error {
	switch h.state {
	case stateOpenedRead, stateOpenedReadWrite:
		return nil
	}
	return invalidf(op, "handle is not open for reading")
}
