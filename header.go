package ewf

import (
	"bytes"
	"compress/zlib"
	"encoding/xml"
	"io"
	"strings"

	"github.com/dfirkit/go-ewf/shared"
)

type EWFMediaInfo string

const (
	EWF_HEADER_VALUES_INDEX_DESCRIPTION              EWFMediaInfo = "a"
	EWF_HEADER_VALUES_INDEX_CASE_NUMBER              EWFMediaInfo = "c"
	EWF_HEADER_VALUES_INDEX_EXAMINER_NAME            EWFMediaInfo = "e"
	EWF_HEADER_VALUES_INDEX_EVIDENCE_NUMBER          EWFMediaInfo = "n"
	EWF_HEADER_VALUES_INDEX_NOTES                    EWFMediaInfo = "t"
	EWF_HEADER_VALUES_INDEX_ACQUIRY_SOFTWARE_VERSION EWFMediaInfo = "av"
	EWF_HEADER_VALUES_INDEX_ACQUIRY_OPERATING_SYSTEM EWFMediaInfo = "ov"
	EWF_HEADER_VALUES_INDEX_ACQUIRY_DATE             EWFMediaInfo = "m"
	EWF_HEADER_VALUES_INDEX_SYSTEM_DATE              EWFMediaInfo = "u"
	EWF_HEADER_VALUES_INDEX_PASSWORD                 EWFMediaInfo = "p"
	EWF_HEADER_VALUES_INDEX_PROCESS_IDENTIFIER       EWFMediaInfo = "pid"
	EWF_HEADER_VALUES_INDEX_UNKNOWN_DC               EWFMediaInfo = "dc"
	EWF_HEADER_VALUES_INDEX_EXTENTS                  EWFMediaInfo = "ext"
	EWF_HEADER_VALUES_INDEX_COMPRESSION_TYPE         EWFMediaInfo = "r"
	EWF_HEADER_VALUES_INDEX_MODEL                    EWFMediaInfo = "md"
	EWF_HEADER_VALUES_INDEX_SERIAL_NUMBER            EWFMediaInfo = "sn"
	EWF_HEADER_VALUES_INDEX_DEVICE_LABEL             EWFMediaInfo = "l"
)

const (
	EWF_HEADER_VALUES_INDEX_COMPRESSION_BEST    = "b"
	EWF_HEADER_VALUES_INDEX_COMPRESSION_FASTEST = "f"
	EWF_HEADER_VALUES_INDEX_COMPRESSION_NO      = "n"
)

var CompressionLevels = map[string]string{
	EWF_HEADER_VALUES_INDEX_COMPRESSION_BEST:    "Best",
	EWF_HEADER_VALUES_INDEX_COMPRESSION_FASTEST: "Fastest",
	EWF_HEADER_VALUES_INDEX_COMPRESSION_NO:      "No compression",
}

var AcquiredMediaIdentifiers = map[EWFMediaInfo]string{
	EWF_HEADER_VALUES_INDEX_DESCRIPTION:              "Description",
	EWF_HEADER_VALUES_INDEX_CASE_NUMBER:              "Case Number",
	EWF_HEADER_VALUES_INDEX_EVIDENCE_NUMBER:          "Evidence Number",
	EWF_HEADER_VALUES_INDEX_EXAMINER_NAME:            "Examiner Name",
	EWF_HEADER_VALUES_INDEX_NOTES:                    "Notes",
	EWF_HEADER_VALUES_INDEX_MODEL:                    "Media model",
	EWF_HEADER_VALUES_INDEX_SERIAL_NUMBER:            "Serial number",
	EWF_HEADER_VALUES_INDEX_DEVICE_LABEL:             "Device label",
	EWF_HEADER_VALUES_INDEX_ACQUIRY_SOFTWARE_VERSION: "Version",
	EWF_HEADER_VALUES_INDEX_ACQUIRY_OPERATING_SYSTEM: "Platform",
	EWF_HEADER_VALUES_INDEX_ACQUIRY_DATE:             "Acquired Date",
	EWF_HEADER_VALUES_INDEX_SYSTEM_DATE:              "System Date",
	EWF_HEADER_VALUES_INDEX_PASSWORD:                 "Password Hash",
	EWF_HEADER_VALUES_INDEX_PROCESS_IDENTIFIER:       "Process Identifiers",
	EWF_HEADER_VALUES_INDEX_UNKNOWN_DC:               "Unknown",
	EWF_HEADER_VALUES_INDEX_EXTENTS:                  "Extents",
	EWF_HEADER_VALUES_INDEX_COMPRESSION_TYPE:         "Compression level",
}

// EWFHeaderSection is a decoded header, header2 or xheader section: the
// acquiry metadata of the image.
type EWFHeaderSection struct {
	NofCategories string
	CategoryName  string
	Values        *ValueTable
}

// Decode reads a header or header2 body: a zlib stream of tab and newline
// delimited text, UTF-16 encoded when it carries a BOM.
func (ewfHeader *EWFHeaderSection) Decode(fh io.ReadSeeker, section *SectionDescriptor) error {
	data, err := readCompressedBody(fh, section)
	if err != nil {
		return err
	}

	if shared.HasUTF16BOM(data) {
		text, err := shared.UTF16ToUTF8(data)
		if err != nil {
			return corruptf("header", "invalid UTF-16 header text: %v", err)
		}
		data = []byte(text)
	}

	ewfHeader.Values = NewValueTable()

	var identifiers []string
	for lineNum, line := range bytes.Split(data, newLineDelim) {
		for attrNum, attr := range bytes.Split(line, fieldDelim) {
			strAttr := string(bytes.TrimSuffix(attr, []byte{'\r'}))
			switch lineNum {
			case 0:
				if len(strAttr) > 0 {
					ewfHeader.NofCategories = string(strAttr[0])
				}
			case 1:
				ewfHeader.CategoryName = strAttr
			case 2:
				identifiers = append(identifiers, strAttr)
			case 3:
				if attrNum < len(identifiers) && identifiers[attrNum] != "" {
					ewfHeader.Values.Set(identifiers[attrNum], strAttr)
				}
			}
		}
	}

	return nil
}

// text renders the tab and newline delimited header body.
func (ewfHeader *EWFHeaderSection) text() string {
	var sb strings.Builder

	sb.WriteString(ewfHeader.NofCategories)
	sb.Write(newLineDelim)
	sb.WriteString(ewfHeader.CategoryName)
	sb.Write(newLineDelim)

	ids := ewfHeader.Values.Identifiers()
	vals := make([]string, 0, len(ids))
	for _, id := range ids {
		v, _ := ewfHeader.Values.Get(id)
		vals = append(vals, v)
	}
	sb.WriteString(strings.Join(ids, string(fieldDelim)))
	sb.Write(newLineDelim)
	sb.WriteString(strings.Join(vals, string(fieldDelim)))
	sb.Write(newLineDelim)

	return sb.String()
}

// Encode writes the section `copies` times back to back, the way EnCase
// duplicates its header sections. sectionType selects header vs header2;
// header2 bodies are UTF-16 encoded before compression.
func (ewfHeader *EWFHeaderSection) Encode(w io.WriteSeeker, sectionType string, copies int) error {
	raw := []byte(ewfHeader.text())

	if sectionType == EWF_SECTION_TYPE_HEADER2 {
		enc, err := shared.UTF8ToUTF16(ewfHeader.text())
		if err != nil {
			return invalidf("header", "header text not encodable as UTF-16: %v", err)
		}
		raw = enc
	}

	comp, err := shared.NewZlibCompressor(zlib.BestCompression)
	if err != nil {
		return wrapIO("header", err)
	}
	body, err := comp.Compress(raw)
	if err != nil {
		return wrapIO("header", err)
	}

	for i := 0; i < copies; i++ {
		if err := writeSectionWithBody(w, sectionType, body); err != nil {
			return err
		}
	}
	return nil
}

// xheaderDocument is the XML carried by EWFX xheader sections.
type xheaderDocument struct {
	XMLName xml.Name       `xml:"xheader"`
	Values  []xheaderValue `xml:"value"`
}

type xheaderValue struct {
	Identifier string `xml:"identifier,attr"`
	Value      string `xml:",chardata"`
}

// DecodeXHeader reads an xheader body: a zlib stream of UTF-8 XML.
func (ewfHeader *EWFHeaderSection) DecodeXHeader(fh io.ReadSeeker, section *SectionDescriptor) error {
	data, err := readCompressedBody(fh, section)
	if err != nil {
		return err
	}

	var doc xheaderDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return corruptf("header", "invalid xheader XML: %v", err)
	}

	ewfHeader.NofCategories = "1"
	ewfHeader.CategoryName = "main"
	ewfHeader.Values = NewValueTable()
	for _, v := range doc.Values {
		ewfHeader.Values.Set(v.Identifier, v.Value)
	}
	return nil
}

// EncodeXHeader writes the xheader section for EWFX images.
func (ewfHeader *EWFHeaderSection) EncodeXHeader(w io.WriteSeeker) error {
	doc := xheaderDocument{}
	for _, id := range ewfHeader.Values.Identifiers() {
		v, _ := ewfHeader.Values.Get(id)
		doc.Values = append(doc.Values, xheaderValue{Identifier: id, Value: v})
	}

	raw, err := xml.Marshal(&doc)
	if err != nil {
		return invalidf("header", "xheader not encodable: %v", err)
	}
	raw = append([]byte(xml.Header), raw...)

	comp, err := shared.NewZlibCompressor(zlib.BestCompression)
	if err != nil {
		return wrapIO("header", err)
	}
	body, err := comp.Compress(raw)
	if err != nil {
		return wrapIO("header", err)
	}

	return writeSectionWithBody(w, EWF_SECTION_TYPE_XHEADER, body)
}

// readCompressedBody reads a section body and inflates it.
func readCompressedBody(fh io.ReadSeeker, section *SectionDescriptor) ([]byte, error) {
	if _, err := fh.Seek(section.DataOffset, io.SeekStart); err != nil {
		return nil, wrapIO("header", err)
	}
	rd := make([]byte, section.DataSize())
	if _, err := io.ReadFull(fh, rd); err != nil {
		return nil, wrapIO("header", err)
	}

	data, err := shared.DecompressZlib(rd)
	if err != nil {
		return nil, corruptf("header", "section body does not inflate: %v", err)
	}
	return data, nil
}

// writeSectionWithBody appends one descriptor plus body.
func writeSectionWithBody(w io.WriteSeeker, sectionType string, body []byte) error {
	if _, err := writeSectionDescriptor(w, sectionType, uint64(len(body))); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return wrapIO("section", err)
	}
	return nil
}
