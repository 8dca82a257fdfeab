package ewf

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// tamperChunk flips one byte inside the stored payload of the given chunk.
func tamperChunk(t *testing.T, ewfPath string, chunk uint64) {
	t.Helper()

	h, err := Open([]string{ewfPath}, AccessRead)
	if err != nil {
		t.Fatalf("Open(read): %v", err)
	}
	entry, err := h.offsets.entry(chunk)
	if err != nil {
		t.Fatalf("entry(%d): %v", chunk, err)
	}
	segPath := h.segments.Segments[entry.segment].Path
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.OpenFile(segPath, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	pos := entry.fileOffset + 10
	var b [1]byte
	if _, err := f.ReadAt(b[:], pos); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	b[0] ^= 0xFF
	if _, err := f.WriteAt(b[:], pos); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
}

func TestChunkChecksumTamper(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "tamper.E01")

	original := patternData(1 << 20)
	writeTestImage(t, ewfPath, original, func(h *Handle) {
		// no compression so chunks carry the adler32 trailer
		if err := h.SetWriteCompressionValues(CompressionNone, false); err != nil {
			t.Fatalf("SetWriteCompressionValues: %v", err)
		}
	})

	const badChunk = 5
	tamperChunk(t, ewfPath, badChunk)

	t.Run("RecordWithoutWipe", func(t *testing.T) {
		h, err := Open([]string{ewfPath}, AccessRead)
		if err != nil {
			t.Fatalf("Open(read): %v", err)
		}
		defer h.Close()

		got := readAll(t, h)

		chunkSize := int(h.img.media.ChunkSize())
		start := badChunk * chunkSize
		if bytes.Equal(got[start:start+chunkSize], original[start:start+chunkSize]) {
			t.Fatal("tampered chunk read back unchanged")
		}
		if !bytes.Equal(got[:start], original[:start]) {
			t.Fatal("chunks before the tampered one differ")
		}
		if !bytes.Equal(got[start+chunkSize:], original[start+chunkSize:]) {
			t.Fatal("chunks after the tampered one differ")
		}

		n, err := h.GetAmountOfCRCErrors()
		if err != nil {
			t.Fatalf("GetAmountOfCRCErrors: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected exactly 1 checksum error, got %d", n)
		}
		e, err := h.GetCRCError(0)
		if err != nil {
			t.Fatalf("GetCRCError: %v", err)
		}
		spc := h.img.media.SectorsPerChunk
		if e.Sector != badChunk*uint64(spc) || e.AmountOfSectors != spc {
			t.Fatalf("checksum error range {%d, %d}, want {%d, %d}", e.Sector, e.AmountOfSectors, badChunk*uint64(spc), spc)
		}
	})

	t.Run("WipeOnError", func(t *testing.T) {
		h, err := Open([]string{ewfPath}, AccessRead)
		if err != nil {
			t.Fatalf("Open(read): %v", err)
		}
		defer h.Close()

		if err := h.SetReadWipeChunkOnError(true); err != nil {
			t.Fatalf("SetReadWipeChunkOnError: %v", err)
		}

		got := readAll(t, h)

		chunkSize := int(h.img.media.ChunkSize())
		start := badChunk * chunkSize
		if !bytes.Equal(got[start:start+chunkSize], make([]byte, chunkSize)) {
			t.Fatal("tampered chunk was not wiped to zeros")
		}
		if !bytes.Equal(got[start+chunkSize:], original[start+chunkSize:]) {
			t.Fatal("untampered chunks differ after the wipe")
		}

		n, _ := h.GetAmountOfCRCErrors()
		if n != 1 {
			t.Fatalf("expected exactly 1 checksum error, got %d", n)
		}
	})
}

func TestCompressedChunkTamper(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "ztamper.E01")

	original := bytes.Repeat([]byte("forensic evidence "), 64*1024)
	writeTestImage(t, ewfPath, original, func(h *Handle) {
		if err := h.SetWriteCompressionValues(CompressionBest, false); err != nil {
			t.Fatalf("SetWriteCompressionValues: %v", err)
		}
	})

	tamperChunk(t, ewfPath, 2)

	t.Run("HardErrorWithoutWipe", func(t *testing.T) {
		h, err := Open([]string{ewfPath}, AccessRead)
		if err != nil {
			t.Fatalf("Open(read): %v", err)
		}
		defer h.Close()

		_, err = h.readChunk(2)
		if !errors.Is(err, ErrChunkCorrupt) {
			t.Fatalf("expected ErrChunkCorrupt, got %v", err)
		}
	})

	t.Run("ZerosWithWipe", func(t *testing.T) {
		h, err := Open([]string{ewfPath}, AccessRead)
		if err != nil {
			t.Fatalf("Open(read): %v", err)
		}
		defer h.Close()

		if err := h.SetReadWipeChunkOnError(true); err != nil {
			t.Fatalf("SetReadWipeChunkOnError: %v", err)
		}

		data, err := h.readChunk(2)
		if err != nil {
			t.Fatalf("readChunk under wipe policy: %v", err)
		}
		if !bytes.Equal(data, make([]byte, len(data))) {
			t.Fatal("destroyed chunk did not read as zeros")
		}
		if n, _ := h.GetAmountOfCRCErrors(); n != 1 {
			t.Fatalf("expected 1 checksum error, got %d", n)
		}
	})
}

func TestReadBeyondMedia(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "eof.E01")

	original := patternData(100_000)
	writeTestImage(t, ewfPath, original, nil)

	h, err := Open([]string{ewfPath}, AccessRead)
	if err != nil {
		t.Fatalf("Open(read): %v", err)
	}
	defer h.Close()

	size := h.Size()
	if size < int64(len(original)) {
		t.Fatalf("media smaller than input: %d < %d", size, len(original))
	}

	buf := make([]byte, 4096)
	n, err := h.ReadAt(buf, size-100)
	if n != 100 {
		t.Fatalf("short read at media end: n=%d", n)
	}
	if err == nil {
		t.Fatal("expected EOF on short read at media end")
	}
}
