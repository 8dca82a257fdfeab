package ewf

import (
	"compress/zlib"
	"encoding/binary"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"io"

	"github.com/dfirkit/go-ewf/shared"
)

// EWFHashSection carries the MD5 of the acquired media. The 16 bytes after
// the MD5 are undocumented; they are preserved verbatim from a read image
// and zero on fresh writes.
type EWFHashSection struct {
	MD5      [16]uint8
	Unknown  [16]uint8
	Checksum uint32
}

func (d *EWFHashSection) Decode(fh io.ReadSeeker, section *SectionDescriptor) error {
	if _, err := fh.Seek(section.DataOffset, io.SeekStart); err != nil {
		return wrapIO("hash", err)
	}

	if err := shared.ReadWithSum(fh, d); err != nil {
		if errors.Is(err, shared.ErrChecksumMismatch) {
			return corruptf("hash", "hash body checksum mismatch at 0x%x", section.Offset)
		}
		return wrapIO("hash", err)
	}
	return nil
}

func (d *EWFHashSection) Encode(w io.WriteSeeker) error {
	if _, err := writeSectionDescriptor(w, EWF_SECTION_TYPE_HASH, uint64(binary.Size(d))); err != nil {
		return err
	}
	if _, _, err := shared.WriteWithSum(w, d); err != nil {
		return wrapIO("hash", err)
	}
	return nil
}

// xhashDocument is the XML carried by EWFX xhash sections.
type xhashDocument struct {
	XMLName xml.Name `xml:"xhash"`
	MD5     string   `xml:"md5"`
	SHA1    string   `xml:"sha1"`
}

// EWFXHashSection is the EWFX digest record: hex digests in compressed XML.
type EWFXHashSection struct {
	MD5  [16]uint8
	SHA1 [20]uint8
}

func (d *EWFXHashSection) Decode(fh io.ReadSeeker, section *SectionDescriptor) error {
	data, err := readCompressedBody(fh, section)
	if err != nil {
		return err
	}

	var doc xhashDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return corruptf("hash", "invalid xhash XML: %v", err)
	}

	md5Raw, err := hex.DecodeString(doc.MD5)
	if err != nil || len(md5Raw) != len(d.MD5) {
		return corruptf("hash", "invalid MD5 digest in xhash")
	}
	copy(d.MD5[:], md5Raw)

	if doc.SHA1 != "" {
		sha1Raw, err := hex.DecodeString(doc.SHA1)
		if err != nil || len(sha1Raw) != len(d.SHA1) {
			return corruptf("hash", "invalid SHA1 digest in xhash")
		}
		copy(d.SHA1[:], sha1Raw)
	}
	return nil
}

func (d *EWFXHashSection) Encode(w io.WriteSeeker) error {
	doc := xhashDocument{
		MD5:  hex.EncodeToString(d.MD5[:]),
		SHA1: hex.EncodeToString(d.SHA1[:]),
	}
	raw, err := xml.Marshal(&doc)
	if err != nil {
		return invalidf("hash", "xhash not encodable: %v", err)
	}
	raw = append([]byte(xml.Header), raw...)

	comp, err := shared.NewZlibCompressor(zlib.BestCompression)
	if err != nil {
		return wrapIO("hash", err)
	}
	body, err := comp.Compress(raw)
	if err != nil {
		return wrapIO("hash", err)
	}

	return writeSectionWithBody(w, EWF_SECTION_TYPE_XHASH, body)
}
