package shared

import (
	"golang.org/x/text/encoding/unicode"
)

var (
	utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	utf16Encoder = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
)

// HasUTF16BOM reports whether in starts with a UTF-16 byte order mark of
// either endianness.
func HasUTF16BOM(in []byte) bool {
	if len(in) < 2 {
		return false
	}
	return (in[0] == 0xFF && in[1] == 0xFE) || (in[0] == 0xFE && in[1] == 0xFF)
}

// UTF16ToUTF8 decodes a UTF-16 little-endian byte stream. A leading BOM is
// honored and stripped.
func UTF16ToUTF8(in []byte) (string, error) {
	out, err := utf16Decoder.NewDecoder().Bytes(in)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// UTF8ToUTF16 encodes s as UTF-16 little-endian with a leading BOM, the
// encoding EnCase uses for header2 payloads.
func UTF8ToUTF16(s string) ([]byte, error) {
	return utf16Encoder.NewEncoder().Bytes([]byte(s))
}
