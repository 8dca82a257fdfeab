package ewf

import (
	"path/filepath"
	"testing"
)

func TestSegmentExtensionSequence(t *testing.T) {
	cases := []struct {
		first  byte
		number uint16
		want   string
	}{
		{'E', 1, "E01"},
		{'E', 9, "E09"},
		{'E', 42, "E42"},
		{'E', 99, "E99"},
		{'E', 100, "EAA"},
		{'E', 125, "EAZ"},
		{'E', 126, "EBA"},
		{'E', 100 + 675, "EZZ"},
		{'E', 100 + 676, "FAA"},
		{'s', 1, "s01"},
		{'s', 100, "sAA"},
		{'D', 1, "D01"},
	}

	for _, c := range cases {
		got, err := segmentExtension(c.first, c.number)
		if err != nil {
			t.Fatalf("segmentExtension(%c, %d): %v", c.first, c.number, err)
		}
		if got != c.want {
			t.Errorf("segmentExtension(%c, %d) = %q, want %q", c.first, c.number, got, c.want)
		}
	}

	if _, err := segmentExtension('E', 0); err == nil {
		t.Error("segment number 0 accepted")
	}
}

func TestDefaultSegmentFilename(t *testing.T) {
	got, err := DefaultSegmentFilename("/case/disk.E01", 2, FormatEnCase5)
	if err != nil {
		t.Fatalf("DefaultSegmentFilename: %v", err)
	}
	if got != "/case/disk.E02" {
		t.Fatalf("got %q", got)
	}

	// a base without a segment extension keeps its name
	got, err = DefaultSegmentFilename("/case/disk.img", 1, FormatEnCase5)
	if err != nil {
		t.Fatalf("DefaultSegmentFilename: %v", err)
	}
	if got != "/case/disk.img.E01" {
		t.Fatalf("got %q", got)
	}

	got, err = DefaultSegmentFilename("/case/disk", 1, FormatSMART)
	if err != nil {
		t.Fatalf("DefaultSegmentFilename: %v", err)
	}
	if got != "/case/disk.s01" {
		t.Fatalf("got %q", got)
	}
}

func TestDiscoverSegmentFiles(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "multi.E01")

	// small budget forces several segments
	writeTestImage(t, ewfPath, patternData(4<<20), func(h *Handle) {
		if err := h.SetWriteSegmentFileSize(minSegmentFileSize); err != nil {
			t.Fatalf("SetWriteSegmentFileSize: %v", err)
		}
	})

	paths, err := discoverSegmentFiles(ewfPath)
	if err != nil {
		t.Fatalf("discoverSegmentFiles: %v", err)
	}
	if len(paths) < 2 {
		t.Fatalf("expected multiple segments, got %v", paths)
	}
	if paths[0] != ewfPath {
		t.Fatalf("first path is %q", paths[0])
	}
	if paths[1] != filepath.Join(tmpDir, "multi.E02") {
		t.Fatalf("second path is %q", paths[1])
	}
}
