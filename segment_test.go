package ewf

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckSignature(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("ValidImage", func(t *testing.T) {
		ewfPath := filepath.Join(tmpDir, "sig.E01")
		writeTestImage(t, ewfPath, patternData(DefaultChunkSize), nil)

		ok, err := CheckSignature(ewfPath)
		if err != nil {
			t.Fatalf("CheckSignature: %v", err)
		}
		if !ok {
			t.Fatal("valid image not recognized")
		}
	})

	t.Run("NotAnImage", func(t *testing.T) {
		other := filepath.Join(tmpDir, "plain.bin")
		if err := os.WriteFile(other, patternData(1024), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		ok, err := CheckSignature(other)
		if err != nil {
			t.Fatalf("CheckSignature: %v", err)
		}
		if ok {
			t.Fatal("random data recognized as EWF")
		}
	})

	t.Run("TooShort", func(t *testing.T) {
		short := filepath.Join(tmpDir, "short.bin")
		if err := os.WriteFile(short, []byte{'E', 'V'}, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		ok, err := CheckSignature(short)
		if err != nil {
			t.Fatalf("CheckSignature: %v", err)
		}
		if ok {
			t.Fatal("truncated file recognized as EWF")
		}
	})
}

// sectionPlacement finds the first section of the given type in segment one.
func sectionPlacement(t *testing.T, ewfPath, sectionType string) (dataOffset int64) {
	t.Helper()

	h, err := Open([]string{ewfPath}, AccessRead)
	if err != nil {
		t.Fatalf("Open(read): %v", err)
	}
	defer h.Close()

	for _, section := range h.SegmentFiles()[0].Sections {
		if section.Type == sectionType {
			return section.DataOffset
		}
	}
	t.Fatalf("no %q section found", sectionType)
	return 0
}

func flipByte(t *testing.T, path string, pos int64) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	var b [1]byte
	if _, err := f.ReadAt(b[:], pos); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	b[0] ^= 0xFF
	if _, err := f.WriteAt(b[:], pos); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
}

func TestTableFallback(t *testing.T) {
	original := patternData(512 * 1024)

	setup := func(t *testing.T) string {
		tmpDir := t.TempDir()
		ewfPath := filepath.Join(tmpDir, "fallback.E01")
		writeTestImage(t, ewfPath, original, nil)
		return ewfPath
	}

	t.Run("Table2TakesOver", func(t *testing.T) {
		ewfPath := setup(t)

		// corrupt the first entry of the table body; its footer
		// checksum no longer matches
		tableData := sectionPlacement(t, ewfPath, EWF_SECTION_TYPE_TABLE)
		flipByte(t, ewfPath, tableData+int64(tableSectionHeaderSize))

		h, err := Open([]string{ewfPath}, AccessRead)
		if err != nil {
			t.Fatalf("Open after table tamper: %v", err)
		}
		defer h.Close()

		got := readAll(t, h)
		if !bytes.Equal(got, original) {
			t.Fatal("data differs after table2 fallback")
		}
	})

	t.Run("BothCopiesBad", func(t *testing.T) {
		ewfPath := setup(t)

		tableData := sectionPlacement(t, ewfPath, EWF_SECTION_TYPE_TABLE)
		table2Data := sectionPlacement(t, ewfPath, EWF_SECTION_TYPE_TABLE2)
		flipByte(t, ewfPath, tableData+int64(tableSectionHeaderSize))
		flipByte(t, ewfPath, table2Data+int64(tableSectionHeaderSize))

		h, err := Open([]string{ewfPath}, AccessRead)
		if err != nil {
			t.Fatalf("Open with both table copies bad: %v", err)
		}
		defer h.Close()

		buf := make([]byte, 512)
		_, err = h.ReadAt(buf, 0)
		if !errors.Is(err, ErrChunkUnavailable) {
			t.Fatalf("expected ErrChunkUnavailable, got %v", err)
		}
	})
}

func TestDescriptorChecksumFailure(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "desc.E01")
	writeTestImage(t, ewfPath, patternData(DefaultChunkSize), nil)

	// corrupt the type tag of the volume section descriptor
	volumeData := sectionPlacement(t, ewfPath, EWF_SECTION_TYPE_VOLUME)
	flipByte(t, ewfPath, volumeData-int64(DescriptorSize)+2)

	_, err := Open([]string{ewfPath}, AccessRead)
	if !errors.Is(err, ErrCorruptContainer) {
		t.Fatalf("expected ErrCorruptContainer, got %v", err)
	}
}

func TestIncompleteSegmentSet(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "trunc.E01")
	writeTestImage(t, ewfPath, patternData(256*1024), nil)

	// a writer that dies mid-image leaves no done section; zeroing the
	// type tag of the terminal done descriptor simulates that
	h, err := Open([]string{ewfPath}, AccessRead)
	if err != nil {
		t.Fatalf("Open(read): %v", err)
	}
	sections := h.SegmentFiles()[0].Sections
	doneOffset := sections[len(sections)-1].Offset
	h.Close()

	f, err := os.OpenFile(ewfPath, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteAt(make([]byte, 16), doneOffset); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	f.Close()

	if _, err := Open([]string{ewfPath}, AccessRead); !errors.Is(err, ErrCorruptContainer) {
		t.Fatalf("expected ErrCorruptContainer for incomplete set, got %v", err)
	}
}
