package ewf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/adler32"
	"io"

	"github.com/dfirkit/go-ewf/shared"
)

const (
	// tableEntryOffsetMask extracts the 31-bit offset relative to
	// BaseOffset; the top bit flags a compressed chunk.
	tableEntryOffsetMask    = uint32(0x7FFFFFFF)
	tableEntryCompressedBit = uint32(1) << 31
)

// EWFTableSectionHeader precedes the offset entries.
type EWFTableSectionHeader struct {
	NumEntries uint32
	Pad        uint32
	BaseOffset uint64
	Pad2       uint32
	Checksum   uint32
}

var tableSectionHeaderSize = binary.Size(&EWFTableSectionHeader{})

// EWFTableSection maps chunk numbers to physical chunk locations. table2
// sections are byte-identical backups written right after their table.
type EWFTableSection struct {
	Header  EWFTableSectionHeader
	Entries []uint32

	// placement captured on decode, used to size the last chunk.
	SectionOffset int64
	SectionEnd    int64

	// Corrupt marks a table whose checksum (and its table2 backup's)
	// failed; its chunk range resolves to ChunkUnavailable.
	Corrupt bool
}

func newTable() *EWFTableSection {
	return &EWFTableSection{}
}

// EntryOffset returns the absolute file offset and compressed flag of entry
// i.
func (t *EWFTableSection) EntryOffset(i int) (offset int64, compressed bool) {
	e := t.Entries[i]
	return int64(t.Header.BaseOffset) + int64(e&tableEntryOffsetMask), e&tableEntryCompressedBit != 0
}

// addEntry records a chunk at absolute file offset absoluteOffset.
//
// Table entries only have 31 bits for the offset (MSB is the compression
// flag), so the table header BaseOffset anchors a 31-bit relative offset.
// addEntry reports false when the entry does not fit this table, either
// because it is full or because the relative offset would overflow; the
// caller must start a new table.
func (t *EWFTableSection) addEntry(absoluteOffset int64, compressed bool, maxEntries uint32) bool {
	if t.Header.NumEntries >= maxEntries {
		return false
	}

	if t.Header.NumEntries == 0 {
		t.Header.BaseOffset = uint64(absoluteOffset)
	}

	rel := uint64(absoluteOffset) - t.Header.BaseOffset
	if rel > uint64(tableEntryOffsetMask) {
		return false
	}

	e := uint32(rel)
	if compressed {
		e |= tableEntryCompressedBit
	}
	t.Header.NumEntries++
	t.Entries = append(t.Entries, e)
	return true
}

// dataSize is the encoded body size: header, entries, entries checksum.
func (t *EWFTableSection) dataSize() uint64 {
	return uint64(tableSectionHeaderSize) + uint64(len(t.Entries))*Uint32Size + ChecksumSize
}

// Decode reads and verifies a table or table2 body. On a checksum mismatch
// the best-effort table is still returned together with ErrCorruptContainer
// so the caller can fall back to table2 or mark the range unavailable.
func (t *EWFTableSection) Decode(fh io.ReadSeeker, section *SectionDescriptor) error {
	if _, err := fh.Seek(section.DataOffset, io.SeekStart); err != nil {
		return wrapIO("table", err)
	}

	t.SectionOffset = section.Offset
	t.SectionEnd = section.Offset + int64(section.Size)

	var corrupt bool
	if err := shared.ReadWithSum(fh, &t.Header); err != nil {
		if !errors.Is(err, shared.ErrChecksumMismatch) {
			return wrapIO("table", err)
		}
		corrupt = true
	}

	if uint64(t.Header.NumEntries)*Uint32Size > section.DataSize() {
		return corruptf("table", "table at 0x%x declares %d entries beyond its section", section.Offset, t.Header.NumEntries)
	}

	t.Entries = make([]uint32, t.Header.NumEntries)
	if err := binary.Read(fh, binary.LittleEndian, &t.Entries); err != nil {
		return wrapIO("table", err)
	}

	var footer uint32
	if err := binary.Read(fh, binary.LittleEndian, &footer); err != nil {
		return wrapIO("table", err)
	}

	entryBytes := new(bytes.Buffer)
	_ = binary.Write(entryBytes, binary.LittleEndian, t.Entries)
	if footer != adler32.Checksum(entryBytes.Bytes()) {
		corrupt = true
	}

	if corrupt {
		return corruptf("table", "table checksum mismatch at 0x%x", section.Offset)
	}
	return nil
}

// Encode writes the table body under the given section type, so the same
// table serializes as table and again as table2.
func (t *EWFTableSection) Encode(w io.WriteSeeker, sectionType string) error {
	if _, err := writeSectionDescriptor(w, sectionType, t.dataSize()); err != nil {
		return err
	}

	if _, _, err := shared.WriteWithSum(w, &t.Header); err != nil {
		return wrapIO("table", err)
	}

	entryBytes := new(bytes.Buffer)
	if err := binary.Write(entryBytes, binary.LittleEndian, t.Entries); err != nil {
		return wrapIO("table", err)
	}
	if _, err := w.Write(entryBytes.Bytes()); err != nil {
		return wrapIO("table", err)
	}

	footer := adler32.Checksum(entryBytes.Bytes())
	if err := binary.Write(w, binary.LittleEndian, footer); err != nil {
		return wrapIO("table", err)
	}
	return nil
}
