package ewf

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestDeltaChunkWriteBack(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "delta.E01")

	original := patternData(1 << 20)
	writeTestImage(t, ewfPath, original, func(h *Handle) {
		if err := h.SetWriteCompressionValues(CompressionNone, false); err != nil {
			t.Fatalf("SetWriteCompressionValues: %v", err)
		}
	})

	const chunk = 3
	h, err := Open([]string{ewfPath}, AccessReadWrite)
	if err != nil {
		t.Fatalf("Open(rw): %v", err)
	}

	chunkSize := int(h.img.media.ChunkSize())
	corrected := bytes.Repeat([]byte{0xAB}, chunkSize)

	t.Run("Rewrite", func(t *testing.T) {
		if err := h.WriteChunkAt(chunk, corrected); err != nil {
			t.Fatalf("WriteChunkAt: %v", err)
		}

		got := readAll(t, h)
		start := chunk * chunkSize
		if !bytes.Equal(got[start:start+chunkSize], corrected) {
			t.Fatal("rewritten chunk did not read back corrected")
		}
		if !bytes.Equal(got[:start], original[:start]) {
			t.Fatal("chunks before the rewrite changed")
		}
		if !bytes.Equal(got[start+chunkSize:], original[start+chunkSize:]) {
			t.Fatal("chunks after the rewrite changed")
		}
	})

	deltaPath, err := h.GetDeltaSegmentFilename()
	if err != nil {
		t.Fatalf("GetDeltaSegmentFilename: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close(rw): %v", err)
	}

	t.Run("PrimaryUntouched", func(t *testing.T) {
		r, err := Open([]string{ewfPath}, AccessRead)
		if err != nil {
			t.Fatalf("Open(read): %v", err)
		}
		defer r.Close()

		got := readAll(t, r)
		if !bytes.Equal(got, original) {
			t.Fatal("primary segment set changed by the delta write")
		}
	})

	t.Run("ReopenWithDelta", func(t *testing.T) {
		deltaFile, err := deltaSegmentFilename(deltaPath, 1)
		if err != nil {
			t.Fatalf("deltaSegmentFilename: %v", err)
		}

		r, err := Open([]string{ewfPath, deltaFile}, AccessRead)
		if err != nil {
			t.Fatalf("Open(read with delta): %v", err)
		}
		defer r.Close()

		got := readAll(t, r)
		start := chunk * chunkSize
		if !bytes.Equal(got[start:start+chunkSize], corrected) {
			t.Fatal("delta chunk lost across reopen")
		}
		if !bytes.Equal(got[:start], original[:start]) {
			t.Fatal("chunks before the delta differ after reopen")
		}
	})
}

func TestDeltaValidation(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "deltav.E01")
	writeTestImage(t, ewfPath, patternData(128*1024), nil)

	h, err := Open([]string{ewfPath}, AccessReadWrite)
	if err != nil {
		t.Fatalf("Open(rw): %v", err)
	}
	defer h.Close()

	chunkSize := int(h.img.media.ChunkSize())

	if err := h.WriteChunkAt(1, make([]byte, chunkSize-1)); err == nil {
		t.Fatal("short payload accepted")
	}
	if err := h.WriteChunkAt(1 << 40, make([]byte, chunkSize)); err == nil {
		t.Fatal("out-of-range chunk accepted")
	}

	// read-only handles must refuse write-back
	r, err := Open([]string{ewfPath}, AccessRead)
	if err != nil {
		t.Fatalf("Open(read): %v", err)
	}
	defer r.Close()
	if err := r.WriteChunkAt(0, make([]byte, chunkSize)); err == nil {
		t.Fatal("read-only handle accepted a chunk rewrite")
	}
}
