package ewf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dfirkit/go-ewf/shared"
)

// SectionDescriptorData is the on-disk section header: a NUL-padded type
// tag, the absolute offset of the next section, the size of this section
// including the descriptor, and an adler32 checksum over the preceding
// bytes.
type SectionDescriptorData struct {
	Type     [16]byte
	Next     uint64
	Size     uint64
	Pad      [40]byte
	Checksum uint32
}

// DescriptorSize is the encoded size of a section descriptor (76 bytes).
var DescriptorSize = uint64(binary.Size(&SectionDescriptorData{}))

func NewSectionDescriptorData(typeStr string) *SectionDescriptorData {
	desc := SectionDescriptorData{
		Pad: [40]byte{},
	}
	copy(desc.Type[:], typeStr)
	return &desc
}

// SectionDescriptor is a decoded section header plus its placement in the
// segment file.
type SectionDescriptor struct {
	Descriptor *SectionDescriptorData
	Type       string
	Next       uint64
	Size       uint64
	Checksum   uint32
	Offset     int64
	DataOffset int64
}

// DataSize is the size of the section body, without the descriptor.
func (esd *SectionDescriptor) DataSize() uint64 {
	if esd.Size < DescriptorSize {
		return 0
	}
	return esd.Size - DescriptorSize
}

func (esd *SectionDescriptor) String() string {
	return fmt.Sprintf("<EWFSection type=%s size=0x%x offset=0x%x checksum=0x%x>", esd.Type, esd.Size, esd.Offset, esd.Checksum)
}

// readSectionDescriptor reads and verifies a section descriptor at the
// current file position.
func readSectionDescriptor(fh io.ReadSeeker) (*SectionDescriptor, error) {
	offset, err := fh.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, wrapIO("section", err)
	}

	var descriptor SectionDescriptorData
	if err := shared.ReadWithSum(fh, &descriptor); err != nil {
		if errors.Is(err, shared.ErrChecksumMismatch) {
			return nil, corruptf("section", "descriptor checksum mismatch at offset 0x%x", offset)
		}
		return nil, wrapIO("section", err)
	}

	dataOffset, err := fh.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, wrapIO("section", err)
	}

	desc := &SectionDescriptor{
		Descriptor: &descriptor,
		Type:       string(bytes.TrimRight(descriptor.Type[:], "\x00")),
		Next:       descriptor.Next,
		Size:       descriptor.Size,
		Checksum:   descriptor.Checksum,
		Offset:     offset,
		DataOffset: dataOffset,
	}

	// The declared size and next offset must be consistent with the file:
	// next either equals this descriptor's offset (terminal section) or
	// points past the descriptor.
	if desc.Next != uint64(offset) && desc.Next < uint64(offset)+DescriptorSize {
		return nil, corruptf("section", "section %q at 0x%x declares next offset 0x%x inside itself", desc.Type, offset, desc.Next)
	}
	if desc.Size != 0 && desc.Size < DescriptorSize {
		return nil, corruptf("section", "section %q at 0x%x declares size 0x%x smaller than its descriptor", desc.Type, offset, desc.Size)
	}

	return desc, nil
}

// writeSectionDescriptor appends a descriptor for a section with a body of
// dataSize bytes starting right after it, returning the written descriptor.
// The caller appends the body afterwards.
func writeSectionDescriptor(w io.WriteSeeker, typeStr string, dataSize uint64) (*SectionDescriptorData, error) {
	currentPosition, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, wrapIO("section", err)
	}

	desc := NewSectionDescriptorData(typeStr)
	desc.Size = DescriptorSize + dataSize
	desc.Next = uint64(currentPosition) + desc.Size

	_, desc.Checksum, err = shared.WriteWithSum(w, desc)
	if err != nil {
		return nil, wrapIO("section", err)
	}
	return desc, nil
}
