package ewf

import (
	"io"

	"github.com/dfirkit/go-ewf/shared"
)

// EWFDoneSection terminates the last segment of an image. Its next offset
// points at itself.
type EWFDoneSection struct{}

func (d *EWFDoneSection) Decode(fh io.ReadSeeker, section *SectionDescriptor) error {
	// done has no body
	return nil
}

func (d *EWFDoneSection) Encode(w io.WriteSeeker) error {
	return encodeTerminalSection(w, EWF_SECTION_TYPE_DONE)
}

// EWFNextSection terminates a segment that continues in the following
// segment file. Same shape as done.
type EWFNextSection struct{}

func (d *EWFNextSection) Decode(fh io.ReadSeeker, section *SectionDescriptor) error {
	return nil
}

func (d *EWFNextSection) Encode(w io.WriteSeeker) error {
	return encodeTerminalSection(w, EWF_SECTION_TYPE_NEXT)
}

func encodeTerminalSection(w io.WriteSeeker, sectionType string) error {
	currentPosition, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapIO(sectionType, err)
	}

	desc := NewSectionDescriptorData(sectionType)
	desc.Size = DescriptorSize
	desc.Next = uint64(currentPosition)

	return writeDescriptorData(w, desc)
}

// writeDescriptorData writes a fully prepared descriptor, filling its
// checksum.
func writeDescriptorData(w io.Writer, desc *SectionDescriptorData) error {
	_, sum, err := shared.WriteWithSum(w, desc)
	if err != nil {
		return wrapIO("section", err)
	}
	desc.Checksum = sum
	return nil
}
