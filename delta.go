package ewf

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/dfirkit/go-ewf/shared"
)

// EWFDeltaChunkHeader precedes the payload of a delta_chunk section: the
// logical chunk number being replaced and the stored payload size,
// checksum trailer included.
type EWFDeltaChunkHeader struct {
	ChunkNumber uint64
	DataSize    uint32
	Pad         [4]byte
	Checksum    uint32
}

var deltaChunkHeaderSize = binary.Size(&EWFDeltaChunkHeader{})

// deltaWriteState appends corrected chunks to a delta segment set owned by
// a read-write handle. It shares no files with the primary set.
type deltaWriteState struct {
	basePath string
	f        *os.File
	path     string

	// index of the open delta file in the handle's delta segment table,
	// -1 until the first corrected chunk registers it
	readIndex int
}

func newDeltaWriteState(basePath string) *deltaWriteState {
	return &deltaWriteState{basePath: trimSegmentExtension(basePath), readIndex: -1}
}

// SetDeltaSegmentFilename changes the base path delta segments are created
// under. Only legal before the first corrected chunk is written.
func (h *Handle) SetDeltaSegmentFilename(basePath string) error {
	if h.state != stateOpenedReadWrite {
		return invalidf("delta", "only valid on a read-write handle")
	}
	if basePath == "" {
		return invalidf("delta", "empty path")
	}
	if h.delta.f != nil {
		return invalidf("delta", "delta segment filename cannot be changed")
	}
	h.delta.basePath = trimSegmentExtension(basePath)
	return nil
}

// GetDeltaSegmentFilename returns the active delta segment base path.
func (h *Handle) GetDeltaSegmentFilename() (string, error) {
	if h.state != stateOpenedReadWrite {
		return "", invalidf("delta", "only valid on a read-write handle")
	}
	return h.delta.basePath, nil
}

// WriteChunkAt replaces one chunk of a read-write handle. The corrected
// payload lands in the delta segment; the primary segments stay untouched.
func (h *Handle) WriteChunkAt(chunk uint64, data []byte) error {
	if h.state != stateOpenedReadWrite {
		return invalidf("delta", "only valid on a read-write handle")
	}
	if chunk >= h.offsets.len() {
		return invalidf("delta", "chunk %d beyond the image's %d chunks", chunk, h.offsets.len())
	}
	if int64(len(data)) != h.chunkPayloadSize(chunk) {
		return invalidf("delta", "chunk %d payload must be %d bytes, got %d", chunk, h.chunkPayloadSize(chunk), len(data))
	}

	if h.delta.f == nil {
		if err := h.delta.open(); err != nil {
			return err
		}
	}

	f := h.delta.f
	// reads share this descriptor; always append at the tail
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return wrapIO("delta", err)
	}
	bodySize := uint64(deltaChunkHeaderSize) + uint64(len(data)) + ChecksumSize
	if _, err := writeSectionDescriptor(f, EWF_SECTION_TYPE_DELTA_CHUNK, bodySize); err != nil {
		return err
	}

	header := EWFDeltaChunkHeader{
		ChunkNumber: chunk,
		DataSize:    uint32(len(data)) + ChecksumSize,
	}
	if _, _, err := shared.WriteWithSum(f, &header); err != nil {
		return wrapIO("delta", err)
	}

	payloadOffset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapIO("delta", err)
	}
	if _, err := f.Write(data); err != nil {
		return wrapIO("delta", err)
	}
	if err := binary.Write(f, binary.LittleEndian, shared.NewChunkSum(data)); err != nil {
		return wrapIO("delta", err)
	}

	// reads of the overridden chunk must come from the delta file
	if h.delta.readIndex < 0 {
		seg := &EWFSegment{Path: h.delta.path, fh: h.delta.f, delta: true}
		h.deltaSegments.add(seg)
		h.delta.readIndex = len(h.deltaSegments.Segments) - 1
	}

	if err := h.offsets.override(chunk, chunkEntry{
		segment:    int32(h.delta.readIndex),
		fileOffset: payloadOffset,
		size:       header.DataSize,
		compressed: false,
		valid:      true,
		delta:      true,
	}); err != nil {
		return err
	}
	h.chunkCache.Remove(chunk)

	h.logger.Debug().Uint64("chunk", chunk).Str("path", h.delta.path).Msg("chunk rewritten into delta segment")
	return nil
}

func (d *deltaWriteState) open() error {
	path, err := deltaSegmentFilename(d.basePath, 1)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return wrapIO("delta", err)
	}

	fileHeader := &EWFFileHeader{
		FieldsStart:   1,
		SegmentNumber: 1,
		FieldsEnd:     0,
	}
	copy(fileHeader.Signature[:], []byte(DVFSignature))
	if err := fileHeader.Encode(f); err != nil {
		f.Close()
		return wrapIO("delta", err)
	}

	d.f = f
	d.path = path
	return nil
}

func (d *deltaWriteState) close() error {
	if d.f == nil {
		return nil
	}

	if _, err := d.f.Seek(0, io.SeekEnd); err != nil {
		d.f.Close()
		d.f = nil
		return wrapIO("delta", err)
	}

	done := new(EWFDoneSection)
	if err := done.Encode(d.f); err != nil {
		d.f.Close()
		d.f = nil
		return err
	}
	err := d.f.Close()
	d.f = nil
	return wrapIO("delta", err)
}

// applyDeltaSegment walks a delta segment opened for reading and overrides
// the offset table entries of every chunk it replaces.
func (h *Handle) applyDeltaSegment(seg *EWFSegment, segmentIndex int32) error {
	if _, err := seg.fh.Seek(int64(fileHeaderSize), io.SeekStart); err != nil {
		return wrapIO("delta", err)
	}

	for {
		section, err := readSectionDescriptor(seg.fh)
		if err != nil {
			return err
		}
		seg.Sections = append(seg.Sections, section)

		if section.Type == EWF_SECTION_TYPE_DELTA_CHUNK {
			var header EWFDeltaChunkHeader
			if err := shared.ReadWithSum(seg.fh, &header); err != nil {
				if errors.Is(err, shared.ErrChecksumMismatch) {
					return corruptf("delta", "delta chunk header checksum mismatch at 0x%x", section.Offset)
				}
				return wrapIO("delta", err)
			}

			if err := h.offsets.override(header.ChunkNumber, chunkEntry{
				segment:    segmentIndex,
				fileOffset: section.DataOffset + int64(deltaChunkHeaderSize),
				size:       header.DataSize,
				compressed: false,
				valid:      true,
				delta:      true,
			}); err != nil {
				return err
			}
		}

		if section.Type == EWF_SECTION_TYPE_DONE || section.Next == uint64(section.Offset) {
			break
		}
		if _, err := seg.fh.Seek(int64(section.Next), io.SeekStart); err != nil {
			return wrapIO("delta", err)
		}
	}
	return nil
}
