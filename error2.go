package ewf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/adler32"
	"io"

	"github.com/dfirkit/go-ewf/shared"
)

// EWFError2SectionHeader precedes the acquisition error runs.
type EWFError2SectionHeader struct {
	AmountOfErrors uint32
	Pad            [4]byte
	Checksum       uint32
}

// EWFError2Sector is one persisted run of bad sectors.
type EWFError2Sector struct {
	FirstSector     uint64
	AmountOfSectors uint32
}

var (
	error2HeaderSize = binary.Size(&EWFError2SectionHeader{})
	error2SectorSize = binary.Size(&EWFError2Sector{})
)

// EWFError2Section persists the acquisition error list.
type EWFError2Section struct {
	Errors []SectorError
}

func (d *EWFError2Section) Decode(fh io.ReadSeeker, section *SectionDescriptor) error {
	if _, err := fh.Seek(section.DataOffset, io.SeekStart); err != nil {
		return wrapIO("error2", err)
	}

	var header EWFError2SectionHeader
	if err := shared.ReadWithSum(fh, &header); err != nil {
		if errors.Is(err, shared.ErrChecksumMismatch) {
			return corruptf("error2", "error2 header checksum mismatch at 0x%x", section.Offset)
		}
		return wrapIO("error2", err)
	}

	if uint64(header.AmountOfErrors)*uint64(error2SectorSize) > section.DataSize() {
		return corruptf("error2", "error2 at 0x%x declares %d errors beyond its section", section.Offset, header.AmountOfErrors)
	}

	sectors := make([]EWFError2Sector, header.AmountOfErrors)
	if err := binary.Read(fh, binary.LittleEndian, &sectors); err != nil {
		return wrapIO("error2", err)
	}

	var footer uint32
	if err := binary.Read(fh, binary.LittleEndian, &footer); err != nil {
		return wrapIO("error2", err)
	}

	entryBytes := new(bytes.Buffer)
	_ = binary.Write(entryBytes, binary.LittleEndian, sectors)
	if footer != adler32.Checksum(entryBytes.Bytes()) {
		return corruptf("error2", "error2 entries checksum mismatch at 0x%x", section.Offset)
	}

	d.Errors = d.Errors[:0]
	for _, s := range sectors {
		d.Errors = append(d.Errors, SectorError{Sector: s.FirstSector, AmountOfSectors: s.AmountOfSectors})
	}
	return nil
}

func (d *EWFError2Section) Encode(w io.WriteSeeker) error {
	sectors := make([]EWFError2Sector, 0, len(d.Errors))
	for _, e := range d.Errors {
		sectors = append(sectors, EWFError2Sector{FirstSector: e.Sector, AmountOfSectors: e.AmountOfSectors})
	}

	dataSize := uint64(error2HeaderSize) + uint64(len(sectors))*uint64(error2SectorSize) + ChecksumSize
	if _, err := writeSectionDescriptor(w, EWF_SECTION_TYPE_ERROR2, dataSize); err != nil {
		return err
	}

	header := EWFError2SectionHeader{AmountOfErrors: uint32(len(sectors))}
	if _, _, err := shared.WriteWithSum(w, &header); err != nil {
		return wrapIO("error2", err)
	}

	entryBytes := new(bytes.Buffer)
	if err := binary.Write(entryBytes, binary.LittleEndian, sectors); err != nil {
		return wrapIO("error2", err)
	}
	if _, err := w.Write(entryBytes.Bytes()); err != nil {
		return wrapIO("error2", err)
	}

	footer := adler32.Checksum(entryBytes.Bytes())
	if err := binary.Write(w, binary.LittleEndian, footer); err != nil {
		return wrapIO("error2", err)
	}
	return nil
}
