package shared

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/adler32"
	"io"
)

const adler32SumSize = 4

// ErrChecksumMismatch is returned by ReadWithSum when the stored trailing
// checksum does not match the checksum of the preceding bytes.
var ErrChecksumMismatch = errors.New("adler32 checksum mismatch")

// WriteWithSum serializes objects which end with a Checksum field and writes
// them to target, filling the checksum with the adler32 sum of the preceding
// bytes.
func WriteWithSum(dest io.Writer, obj interface{}) (n int, sum uint32, err error) {
	buf := bytes.NewBuffer(nil)
	err = binary.Write(buf, binary.LittleEndian, obj)
	if err != nil {
		return
	}

	data := buf.Bytes()
	data = data[:len(data)-adler32SumSize]
	sum = adler32.Checksum(data)

	n, err = dest.Write(data)
	if err != nil {
		return
	}
	err = binary.Write(dest, binary.LittleEndian, sum)
	if err != nil {
		return
	}
	n += adler32SumSize

	return
}

// ReadWithSum deserializes objects which end with a Checksum field and
// verifies the stored checksum against the adler32 sum of the preceding
// bytes. The object is populated even when ErrChecksumMismatch is returned.
func ReadWithSum(src io.Reader, obj interface{}) error {
	raw := make([]byte, binary.Size(obj))
	if _, err := io.ReadFull(src, raw); err != nil {
		return err
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, obj); err != nil {
		return err
	}

	stored := binary.LittleEndian.Uint32(raw[len(raw)-adler32SumSize:])
	if stored != adler32.Checksum(raw[:len(raw)-adler32SumSize]) {
		return ErrChecksumMismatch
	}
	return nil
}

// NewChunkSum computes the checksum appended to uncompressed chunk payloads.
func NewChunkSum(data []byte) uint32 {
	return adler32.Checksum(data)
}

// PadBytes extends buf with zero bytes up to targetLen.
func PadBytes(buf []byte, targetLen int) []byte {
	currentLength := len(buf)
	if currentLength >= targetLen {
		return buf
	}

	padding := make([]byte, targetLen-currentLength)
	return append(buf, padding...)
}

// AllBytesEqual reports whether every byte of p has the same value. Empty
// input counts as equal.
func AllBytesEqual(p []byte) bool {
	if len(p) == 0 {
		return true
	}
	first := p[0]
	for _, b := range p[1:] {
		if b != first {
			return false
		}
	}
	return true
}
