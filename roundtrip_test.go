package ewf

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// patternData produces deterministic, poorly compressible test media.
func patternData(n int) []byte {
	out := make([]byte, n)
	state := uint32(0x12345678)
	for i := range out {
		state = state*1664525 + 1013904223
		out[i] = byte(state >> 24)
	}
	return out
}

func writeTestImage(t *testing.T, path string, data []byte, configure func(*Handle)) {
	t.Helper()

	h, err := Open([]string{path}, AccessWrite)
	if err != nil {
		t.Fatalf("Open(write): %v", err)
	}
	if configure != nil {
		configure(h)
	}

	if len(data) > 0 {
		n, err := h.Write(data)
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if n != len(data) {
			t.Fatalf("Write accepted %d of %d bytes", n, len(data))
		}
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func readAll(t *testing.T, h *Handle) []byte {
	t.Helper()
	buf := make([]byte, h.Size())
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := io.ReadFull(h, buf); err != nil {
		t.Fatalf("read full image: %v", err)
	}
	return buf
}

func TestWriteReadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "roundtrip.E01")

	original := patternData(1024 * 1024)
	writeTestImage(t, ewfPath, original, func(h *Handle) {
		if err := h.SetWriteCompressionValues(CompressionGood, true); err != nil {
			t.Fatalf("SetWriteCompressionValues: %v", err)
		}
		if err := h.SetHeaderValue(string(EWF_HEADER_VALUES_INDEX_CASE_NUMBER), "RT-001"); err != nil {
			t.Fatalf("SetHeaderValue: %v", err)
		}
	})

	h, err := Open([]string{ewfPath}, AccessRead)
	if err != nil {
		t.Fatalf("Open(read): %v", err)
	}
	defer h.Close()

	t.Run("Size", func(t *testing.T) {
		if h.Size() != int64(len(original)) {
			t.Fatalf("Size: got %d, want %d", h.Size(), len(original))
		}
	})

	t.Run("Content", func(t *testing.T) {
		got := readAll(t, h)
		if !bytes.Equal(got, original) {
			t.Fatal("read data differs from written data")
		}
	})

	t.Run("MD5", func(t *testing.T) {
		stored, err := h.GetMD5Hash()
		if err != nil {
			t.Fatalf("GetMD5Hash: %v", err)
		}
		want := md5.Sum(original)
		if !bytes.Equal(stored, want[:]) {
			t.Fatalf("stored MD5 %x, want %x", stored, want)
		}
	})

	t.Run("OffsetTableDense", func(t *testing.T) {
		chunkSize := int64(h.img.media.ChunkSize())
		wantChunks := (int64(len(original)) + chunkSize - 1) / chunkSize
		if int64(h.offsets.len()) != wantChunks {
			t.Fatalf("offset table has %d entries, want %d", h.offsets.len(), wantChunks)
		}
		for i := 1; i < len(h.offsets.entries); i++ {
			prev, cur := h.offsets.entries[i-1], h.offsets.entries[i]
			if cur.segment < prev.segment {
				t.Fatalf("entry %d: segment order regressed", i)
			}
			if cur.segment == prev.segment && cur.fileOffset <= prev.fileOffset {
				t.Fatalf("entry %d: file offset not increasing (%d after %d)", i, cur.fileOffset, prev.fileOffset)
			}
		}
	})

	t.Run("Metadata", func(t *testing.T) {
		v, err := h.GetHeaderValue(string(EWF_HEADER_VALUES_INDEX_CASE_NUMBER))
		if err != nil {
			t.Fatalf("GetHeaderValue: %v", err)
		}
		if v != "RT-001" {
			t.Fatalf("case number: got %q", v)
		}
	})
}

func TestEmptyImage(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "empty.E01")

	writeTestImage(t, ewfPath, nil, nil)

	files, err := filepath.Glob(filepath.Join(tmpDir, "empty.E*"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected exactly one segment, got %v", files)
	}

	h, err := Open([]string{ewfPath}, AccessRead)
	if err != nil {
		t.Fatalf("Open(read): %v", err)
	}
	defer h.Close()

	if h.Size() != 0 {
		t.Fatalf("Size: got %d, want 0", h.Size())
	}

	buf := make([]byte, 64)
	n, err := h.ReadAt(buf, 0)
	if n != 0 || err != io.EOF {
		t.Fatalf("ReadAt on empty image: n=%d err=%v", n, err)
	}

	stored, err := h.GetMD5Hash()
	if err != nil {
		t.Fatalf("GetMD5Hash: %v", err)
	}
	if hex.EncodeToString(stored) != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Fatalf("MD5 of empty image: %x", stored)
	}

	sections := h.SegmentFiles()[0].Sections
	last := sections[len(sections)-1]
	if last.Type != EWF_SECTION_TYPE_DONE {
		t.Fatalf("last section is %q, want done", last.Type)
	}
}

func TestSingleZeroChunk(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "zero.E01")

	zeros := make([]byte, DefaultChunkSize)
	writeTestImage(t, ewfPath, zeros, func(h *Handle) {
		if err := h.SetWriteCompressionValues(CompressionNone, true); err != nil {
			t.Fatalf("SetWriteCompressionValues: %v", err)
		}
	})

	h, err := Open([]string{ewfPath}, AccessRead)
	if err != nil {
		t.Fatalf("Open(read): %v", err)
	}
	defer h.Close()

	if h.offsets.len() != 1 {
		t.Fatalf("expected 1 chunk, got %d", h.offsets.len())
	}
	entry := h.offsets.entries[0]
	if !entry.compressed {
		t.Fatal("empty-block chunk was not stored compressed")
	}
	if entry.size > 128 {
		t.Fatalf("empty-block chunk stored in %d bytes", entry.size)
	}

	got := readAll(t, h)
	if !bytes.Equal(got, zeros) {
		t.Fatal("zero chunk did not read back as zeros")
	}

	stored, err := h.GetMD5Hash()
	if err != nil {
		t.Fatalf("GetMD5Hash: %v", err)
	}
	if hex.EncodeToString(stored) != "bb7df04e1b0a2570657527a7e108ae23" {
		t.Fatalf("MD5 of 32KiB zeros: %x", stored)
	}
}

func TestTwoSegmentSplit(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "split.E01")

	const segmentFileSize = 4 << 20
	original := patternData(10 << 20)
	writeTestImage(t, ewfPath, original, func(h *Handle) {
		if err := h.SetWriteSegmentFileSize(segmentFileSize); err != nil {
			t.Fatalf("SetWriteSegmentFileSize: %v", err)
		}
	})

	files, err := filepath.Glob(filepath.Join(tmpDir, "split.E*"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(files) < 3 {
		t.Fatalf("expected at least 3 segments, got %d", len(files))
	}
	for _, f := range files {
		st, err := os.Stat(f)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if st.Size() > segmentFileSize {
			t.Fatalf("segment %s is %d bytes, budget %d", f, st.Size(), int64(segmentFileSize))
		}
	}

	h, err := Open([]string{ewfPath}, AccessRead)
	if err != nil {
		t.Fatalf("Open(read): %v", err)
	}
	defer h.Close()

	if h.Size() != int64(len(original)) {
		t.Fatalf("Size: got %d, want %d", h.Size(), len(original))
	}

	const off = 5 << 20
	buf := make([]byte, 1<<20)
	if _, err := h.ReadAt(buf, off); err != nil {
		t.Fatalf("ReadAt(5MiB): %v", err)
	}
	if !bytes.Equal(buf, original[off:off+len(buf)]) {
		t.Fatal("data read across the segment boundary differs")
	}
}

func TestSeekReadIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "seek.E01")

	original := patternData(256 * 1024)
	writeTestImage(t, ewfPath, original, nil)

	h, err := Open([]string{ewfPath}, AccessRead)
	if err != nil {
		t.Fatalf("Open(read): %v", err)
	}
	defer h.Close()

	const off = 100_000
	readOnce := func() []byte {
		if _, err := h.Seek(off, io.SeekStart); err != nil {
			t.Fatalf("Seek: %v", err)
		}
		buf := make([]byte, 50_000)
		if _, err := io.ReadFull(h, buf); err != nil {
			t.Fatalf("ReadFull: %v", err)
		}
		return buf
	}

	first := readOnce()
	second := readOnce()
	if !bytes.Equal(first, second) {
		t.Fatal("repeated seek+read returned different data")
	}
	if !bytes.Equal(first, original[off:off+50_000]) {
		t.Fatal("seek+read returned wrong data")
	}
}
