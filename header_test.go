package ewf

import (
	"path/filepath"
	"testing"
)

func TestCopyHeaderValues(t *testing.T) {
	tmpDir := t.TempDir()

	src, err := Open([]string{filepath.Join(tmpDir, "src.E01")}, AccessWrite)
	if err != nil {
		t.Fatalf("Open(src): %v", err)
	}
	defer src.Close()

	if err := src.SetHeaderValue(string(EWF_HEADER_VALUES_INDEX_CASE_NUMBER), "A"); err != nil {
		t.Fatalf("SetHeaderValue: %v", err)
	}
	if err := src.SetHeaderValue(string(EWF_HEADER_VALUES_INDEX_EXAMINER_NAME), "X"); err != nil {
		t.Fatalf("SetHeaderValue: %v", err)
	}

	dst, err := Open([]string{filepath.Join(tmpDir, "dst.E01")}, AccessWrite)
	if err != nil {
		t.Fatalf("Open(dst): %v", err)
	}
	defer dst.Close()

	if err := CopyHeaderValues(dst, src); err != nil {
		t.Fatalf("CopyHeaderValues: %v", err)
	}

	nSrc, _ := src.GetAmountOfHeaderValues()
	nDst, _ := dst.GetAmountOfHeaderValues()
	if nSrc != nDst {
		t.Fatalf("value count differs: src %d, dst %d", nSrc, nDst)
	}

	for i := 0; i < nSrc; i++ {
		srcID, err := src.GetHeaderValueIdentifier(i)
		if err != nil {
			t.Fatalf("src identifier %d: %v", i, err)
		}
		dstID, err := dst.GetHeaderValueIdentifier(i)
		if err != nil {
			t.Fatalf("dst identifier %d: %v", i, err)
		}
		if srcID != dstID {
			t.Fatalf("identifier order differs at %d: %q vs %q", i, srcID, dstID)
		}

		srcVal, _ := src.GetHeaderValue(srcID)
		dstVal, _ := dst.GetHeaderValue(dstID)
		if srcVal != dstVal {
			t.Fatalf("value %q differs: %q vs %q", srcID, srcVal, dstVal)
		}
	}
}

func TestHeaderValuesSurviveFormats(t *testing.T) {
	for _, format := range []Format{FormatEnCase2, FormatEnCase5, FormatSMART, FormatEWFX} {
		format := format
		t.Run(format.String(), func(t *testing.T) {
			tmpDir := t.TempDir()
			basePath := filepath.Join(tmpDir, "hdr.E01")

			writeTestImage(t, basePath, patternData(64*1024), func(h *Handle) {
				if err := h.SetWriteFormat(format); err != nil {
					t.Fatalf("SetWriteFormat: %v", err)
				}
				for _, kv := range [][2]string{
					{string(EWF_HEADER_VALUES_INDEX_CASE_NUMBER), "CASE-42"},
					{string(EWF_HEADER_VALUES_INDEX_EXAMINER_NAME), "J. Metz"},
					{string(EWF_HEADER_VALUES_INDEX_NOTES), "acquired during unit testing"},
				} {
					if err := h.SetHeaderValue(kv[0], kv[1]); err != nil {
						t.Fatalf("SetHeaderValue: %v", err)
					}
				}
			})

			// SMART images land under a .s01 extension
			ewfPath, err := DefaultSegmentFilename(basePath, 1, format)
			if err != nil {
				t.Fatalf("DefaultSegmentFilename: %v", err)
			}

			h, err := Open([]string{ewfPath}, AccessRead)
			if err != nil {
				t.Fatalf("Open(read): %v", err)
			}
			defer h.Close()

			v, err := h.GetHeaderValue(string(EWF_HEADER_VALUES_INDEX_CASE_NUMBER))
			if err != nil {
				t.Fatalf("GetHeaderValue: %v", err)
			}
			if v != "CASE-42" {
				t.Fatalf("case number: got %q", v)
			}
			v, _ = h.GetHeaderValue(string(EWF_HEADER_VALUES_INDEX_EXAMINER_NAME))
			if v != "J. Metz" {
				t.Fatalf("examiner: got %q", v)
			}
		})
	}
}

func TestParseHeaderValuesDates(t *testing.T) {
	tmpDir := t.TempDir()
	ewfPath := filepath.Join(tmpDir, "dates.E01")

	writeTestImage(t, ewfPath, patternData(DefaultChunkSize), func(h *Handle) {
		if err := h.SetHeaderValue(string(EWF_HEADER_VALUES_INDEX_ACQUIRY_DATE), "2024 3 12 14 27 31"); err != nil {
			t.Fatalf("SetHeaderValue: %v", err)
		}
	})

	h, err := Open([]string{ewfPath}, AccessRead)
	if err != nil {
		t.Fatalf("Open(read): %v", err)
	}
	defer h.Close()

	if err := h.ParseHeaderValues(DateFormatISO8601); err != nil {
		t.Fatalf("ParseHeaderValues: %v", err)
	}
	v, err := h.GetHeaderValue(string(EWF_HEADER_VALUES_INDEX_ACQUIRY_DATE))
	if err != nil {
		t.Fatalf("GetHeaderValue: %v", err)
	}
	if v != "2024-03-12T14:27:31" {
		t.Fatalf("ISO date: got %q", v)
	}

	if err := h.ParseHeaderValues(DateFormatMonthDay); err != nil {
		t.Fatalf("ParseHeaderValues: %v", err)
	}
	v, _ = h.GetHeaderValue(string(EWF_HEADER_VALUES_INDEX_ACQUIRY_DATE))
	if v != "03/12/2024 14:27:31" {
		t.Fatalf("month/day date: got %q", v)
	}
}
