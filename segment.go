package ewf

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// EWFFileHeader opens every segment file: signature, then the one-based
// segment number framed by start/end markers.
type EWFFileHeader struct {
	Signature     [8]byte
	FieldsStart   uint8
	SegmentNumber uint16
	FieldsEnd     uint16
}

var fileHeaderSize = binary.Size(&EWFFileHeader{})

func (e *EWFFileHeader) Decode(fh io.Reader) error {
	return binary.Read(fh, binary.LittleEndian, e)
}

func (e *EWFFileHeader) Encode(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, e)
}

// CheckSignature reports whether the file at path starts like an EWF
// segment file. The file is opened read-only and closed again.
func CheckSignature(path string) (bool, error) {
	if path == "" {
		return false, invalidf("segment", "empty path")
	}

	f, err := os.Open(path)
	if err != nil {
		return false, wrapIO("segment", err)
	}
	defer f.Close()

	var header EWFFileHeader
	if err := header.Decode(f); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, wrapIO("segment", err)
	}

	switch string(header.Signature[:]) {
	case EVFSignature, LVFSignature, DVFSignature:
		return true, nil
	}
	return false, nil
}

// imageState is the handle-owned state a segment walk populates: geometry,
// header values, digests and the acquisition error list. Segments borrow
// it during Decode and hold no reference afterwards.
type imageState struct {
	media       Media
	mediaSet    bool
	smartVolume bool

	header  *EWFHeaderSection
	header2 *EWFHeaderSection
	xheader *EWFHeaderSection

	hash   *EWFHashSection
	digest *EWFDigestSection
	xhash  *EWFXHashSection

	acquiryErrors sectorErrorList

	logger zerolog.Logger
}

// EWFSegment is one physical segment file of the image.
type EWFSegment struct {
	FileHeader *EWFFileHeader
	Path       string
	Sections   []*SectionDescriptor
	Tables     []*EWFTableSection

	fh        io.ReadSeeker
	closer    io.Closer
	delta     bool
	isDecoded bool

	// terminal section type observed by the walk: done or next.
	lastSectionType string

	chunkCount uint64
}

// NewEWFSegment wraps an open segment stream, validating the signature.
func NewEWFSegment(fh io.ReadSeeker, path string) (*EWFSegment, error) {
	seg := &EWFSegment{
		Path: path,
		fh:   fh,
	}
	if closer, ok := fh.(io.Closer); ok {
		seg.closer = closer
	}

	if fh != nil {
		if _, err := fh.Seek(0, io.SeekStart); err != nil {
			return nil, wrapIO("segment", err)
		}
		header := new(EWFFileHeader)
		if err := header.Decode(fh); err != nil {
			return nil, wrapIO("segment", err)
		}

		switch string(header.Signature[:]) {
		case EVFSignature, LVFSignature:
		case DVFSignature:
			seg.delta = true
		default:
			return nil, corruptf("segment", "invalid signature in %s", path)
		}
		seg.FileHeader = header
	}

	return seg, nil
}

// openSegmentFile opens one segment from disk.
func openSegmentFile(path string) (*EWFSegment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapIO("segment", err)
	}

	seg, err := NewEWFSegment(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return seg, nil
}

func (seg *EWFSegment) Number() uint16 {
	if seg.FileHeader == nil {
		return 0
	}
	return seg.FileHeader.SegmentNumber
}

func (seg *EWFSegment) Close() error {
	if seg.closer != nil {
		return seg.closer.Close()
	}
	return nil
}

// Decode walks the section chain and dispatches each section to its codec.
// Walking stops at done (image end) or next (continues in the following
// segment).
func (seg *EWFSegment) Decode(ctx *imageState) error {
	if seg.isDecoded {
		return nil
	}

	if _, err := seg.fh.Seek(int64(fileHeaderSize), io.SeekStart); err != nil {
		return wrapIO("segment", err)
	}

	for {
		section, err := readSectionDescriptor(seg.fh)
		if err != nil {
			return err
		}
		seg.Sections = append(seg.Sections, section)

		if err := seg.decodeSection(ctx, section); err != nil {
			return err
		}

		if section.Type == EWF_SECTION_TYPE_DONE || section.Type == EWF_SECTION_TYPE_NEXT {
			seg.lastSectionType = section.Type
			break
		}
		if section.Next == uint64(section.Offset) {
			// terminal section that is neither done nor next: the
			// writer died mid-image
			return corruptf("segment", "segment %s ends without done or next", seg.Path)
		}

		if _, err := seg.fh.Seek(int64(section.Next), io.SeekStart); err != nil {
			return wrapIO("segment", err)
		}
	}

	for _, t := range seg.Tables {
		seg.chunkCount += uint64(t.Header.NumEntries)
	}
	seg.isDecoded = true

	return nil
}

func (seg *EWFSegment) decodeSection(ctx *imageState, section *SectionDescriptor) error {
	switch section.Type {
	case EWF_SECTION_TYPE_HEADER:
		if ctx.header == nil {
			h := new(EWFHeaderSection)
			if err := h.Decode(seg.fh, section); err != nil {
				return err
			}
			ctx.header = h
		}

	case EWF_SECTION_TYPE_HEADER2:
		if ctx.header2 == nil {
			h := new(EWFHeaderSection)
			if err := h.Decode(seg.fh, section); err != nil {
				return err
			}
			ctx.header2 = h
		}

	case EWF_SECTION_TYPE_XHEADER:
		if ctx.xheader == nil {
			h := new(EWFHeaderSection)
			if err := h.DecodeXHeader(seg.fh, section); err != nil {
				return err
			}
			ctx.xheader = h
		}

	case EWF_SECTION_TYPE_DISK, EWF_SECTION_TYPE_VOLUME:
		if !ctx.mediaSet {
			v := new(EWFVolumeSection)
			if err := v.Decode(seg.fh, section, &ctx.media); err != nil {
				return err
			}
			ctx.mediaSet = true
			ctx.smartVolume = v.Smart
		}

	case EWF_SECTION_TYPE_DATA:
		d := new(EWFDataSection)
		if err := d.Decode(seg.fh, section, &ctx.media); err != nil {
			return err
		}
		ctx.mediaSet = true

	case EWF_SECTION_TYPE_SECTORS:
		s := new(EWFSectorsSection)
		if err := s.Decode(seg.fh, section); err != nil {
			return err
		}

	case EWF_SECTION_TYPE_TABLE:
		t := newTable()
		if err := t.Decode(seg.fh, section); err != nil {
			if !errors.Is(err, ErrCorruptContainer) {
				return err
			}
			ctx.logger.Warn().Str("segment", seg.Path).Int64("offset", section.Offset).Msg("table checksum failed, waiting for table2")
			t.Corrupt = true
		}
		seg.Tables = append(seg.Tables, t)

	case EWF_SECTION_TYPE_TABLE2:
		if len(seg.Tables) == 0 {
			return corruptf("segment", "table2 without preceding table in %s", seg.Path)
		}
		last := seg.Tables[len(seg.Tables)-1]
		if !last.Corrupt {
			break
		}
		t2 := newTable()
		if err := t2.Decode(seg.fh, section); err != nil {
			if !errors.Is(err, ErrCorruptContainer) {
				return err
			}
			// both copies bad: the covered chunk range stays
			// unavailable
			ctx.logger.Warn().Str("segment", seg.Path).Int64("offset", section.Offset).Msg("table2 checksum failed, chunk range unavailable")
			break
		}
		seg.Tables[len(seg.Tables)-1] = t2

	case EWF_SECTION_TYPE_ERROR2:
		e := new(EWFError2Section)
		if err := e.Decode(seg.fh, section); err != nil {
			return err
		}
		for _, se := range e.Errors {
			ctx.acquiryErrors.add(se.Sector, se.AmountOfSectors)
		}

	case EWF_SECTION_TYPE_HASH:
		h := new(EWFHashSection)
		if err := h.Decode(seg.fh, section); err != nil {
			return err
		}
		ctx.hash = h

	case EWF_SECTION_TYPE_DIGEST:
		d := new(EWFDigestSection)
		if err := d.Decode(seg.fh, section); err != nil {
			return err
		}
		ctx.digest = d

	case EWF_SECTION_TYPE_XHASH:
		x := new(EWFXHashSection)
		if err := x.Decode(seg.fh, section); err != nil {
			return err
		}
		ctx.xhash = x

	case EWF_SECTION_TYPE_DONE, EWF_SECTION_TYPE_NEXT:
		// terminal, no body

	case EWF_SECTION_TYPE_SESSION, EWF_SECTION_TYPE_LTYPES, EWF_SECTION_TYPE_LTREE:
		// carried by optical and logical images; not interpreted
		ctx.logger.Debug().Str("type", section.Type).Msg("skipping section")

	default:
		ctx.logger.Debug().Str("type", section.Type).Msg("skipping unknown section")
	}

	return nil
}

// appendChunkEntries extends the offset table with this segment's chunks.
// The stored size of a chunk is derived from the next entry's offset; for
// the final entry of a table, from the table's own placement.
func (seg *EWFSegment) appendChunkEntries(ot *offsetTable, segmentIndex int32) error {
	for ti, t := range seg.Tables {
		if t.Corrupt {
			// the header may be part of the damage; bound the range
			count := t.Header.NumEntries
			if count > maxTableEntriesEnCase6 {
				count = maxTableEntriesEnCase6
			}
			ot.appendUnavailable(count)
			continue
		}

		// first chunk of the following table, if any; it bounds this
		// table's last chunk
		var followOffset int64 = -1
		for _, ft := range seg.Tables[ti+1:] {
			if !ft.Corrupt && len(ft.Entries) > 0 {
				followOffset, _ = ft.EntryOffset(0)
				break
			}
		}

		for i := 0; i < len(t.Entries); i++ {
			offset, compressed := t.EntryOffset(i)

			var size int64
			if i+1 < len(t.Entries) {
				next, _ := t.EntryOffset(i + 1)
				size = next - offset
			} else {
				// last chunk of a table: bounded by the nearest
				// following landmark, which depends on whether
				// chunk data precedes the table, follows it in
				// the next table's run, or sits inside the
				// table section
				bound := int64(-1)
				for _, candidate := range []int64{t.SectionOffset, followOffset, t.SectionEnd} {
					if candidate > offset && (bound < 0 || candidate < bound) {
						bound = candidate
					}
				}
				if bound < 0 {
					return corruptf("offset-table", "cannot size last chunk of table at 0x%x in %s", t.SectionOffset, seg.Path)
				}
				size = bound - offset
			}

			if size <= 0 || size > int64(^uint32(0)) {
				return corruptf("offset-table", "implausible chunk size %d in table at 0x%x in %s", size, t.SectionOffset, seg.Path)
			}

			ot.append(chunkEntry{
				segment:    segmentIndex,
				fileOffset: offset,
				size:       uint32(size),
				compressed: compressed,
				valid:      true,
			})
		}
	}
	return nil
}
