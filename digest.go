package ewf

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/dfirkit/go-ewf/shared"
)

// EWFDigestSection carries both MD5 and SHA1, written by formats newer than
// the plain hash section.
type EWFDigestSection struct {
	MD5      [16]uint8
	SHA1     [20]uint8
	Padding  [40]uint8
	Checksum uint32
}

func (d *EWFDigestSection) Decode(fh io.ReadSeeker, section *SectionDescriptor) error {
	if _, err := fh.Seek(section.DataOffset, io.SeekStart); err != nil {
		return wrapIO("digest", err)
	}

	if err := shared.ReadWithSum(fh, d); err != nil {
		if errors.Is(err, shared.ErrChecksumMismatch) {
			return corruptf("digest", "digest body checksum mismatch at 0x%x", section.Offset)
		}
		return wrapIO("digest", err)
	}
	return nil
}

func (d *EWFDigestSection) Encode(w io.WriteSeeker) error {
	if _, err := writeSectionDescriptor(w, EWF_SECTION_TYPE_DIGEST, uint64(binary.Size(d))); err != nil {
		return err
	}
	if _, _, err := shared.WriteWithSum(w, d); err != nil {
		return wrapIO("digest", err)
	}
	return nil
}
