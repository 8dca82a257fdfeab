package ewf

import "strings"

// Format selects which sections are emitted on write and which header
// variants are produced.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatEnCase1
	FormatEnCase2
	FormatEnCase3
	FormatEnCase4
	FormatEnCase5
	FormatEnCase6
	FormatSMART
	FormatFTK
	FormatLinEn
	FormatEWFX
)

var formatNames = map[Format]string{
	FormatEnCase1: "encase1",
	FormatEnCase2: "encase2",
	FormatEnCase3: "encase3",
	FormatEnCase4: "encase4",
	FormatEnCase5: "encase5",
	FormatEnCase6: "encase6",
	FormatSMART:   "smart",
	FormatFTK:     "ftk",
	FormatLinEn:   "linen",
	FormatEWFX:    "ewfx",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}

// ParseFormat maps a format name to its Format value.
func ParseFormat(s string) (Format, error) {
	for f, name := range formatNames {
		if name == strings.ToLower(s) {
			return f, nil
		}
	}
	return FormatUnknown, unsupportedf("format", "unknown format name %q", s)
}

// sectionPlan describes the section layout a format produces on write.
type sectionPlan struct {
	// header section copies written at the start of segment one. EnCase
	// before version 4 writes the header twice back to back.
	headerCopies int
	// header2 copies preceding the header section (EnCase 4 and later).
	header2Copies int
	// xheader replaces nothing; EWFX adds it after the header sections.
	writesXHeader bool
	// data section mirroring the volume at the start of segments >= 2.
	writesData   bool
	writesDigest bool
	writesError2 bool
	writesXHash  bool
	// uses the short SMART volume payload instead of the EnCase one.
	smartVolume bool
	// maximum offsets per table section.
	maxTableEntries uint32
	// first letter of generated segment file extensions.
	extensionLetter byte
}

const (
	maxTableEntriesEWF     = 16375
	maxTableEntriesEnCase6 = 65534
)

func (f Format) plan() sectionPlan {
	p := sectionPlan{
		headerCopies:    2,
		maxTableEntries: maxTableEntriesEWF,
		extensionLetter: 'E',
	}

	switch f {
	case FormatEnCase1, FormatEnCase2, FormatEnCase3:
		// defaults

	case FormatEnCase4:
		p.headerCopies = 1
		p.header2Copies = 2
		p.writesData = true
		p.writesError2 = true

	case FormatEnCase5:
		p.headerCopies = 1
		p.header2Copies = 2
		p.writesData = true
		p.writesError2 = true
		p.writesDigest = true

	case FormatEnCase6:
		p.headerCopies = 1
		p.header2Copies = 2
		p.writesData = true
		p.writesError2 = true
		p.writesDigest = true
		p.maxTableEntries = maxTableEntriesEnCase6

	case FormatSMART:
		p.smartVolume = true
		p.extensionLetter = 's'

	case FormatFTK:
		// FTK imager writes the plain EWF layout.

	case FormatLinEn:
		p.writesError2 = true

	case FormatEWFX:
		p.headerCopies = 1
		p.header2Copies = 1
		p.writesXHeader = true
		p.writesError2 = true
		p.writesDigest = true
		p.writesXHash = true
	}

	return p
}

// supportedWriteFormat reports whether the library can produce f.
func supportedWriteFormat(f Format) bool {
	_, ok := formatNames[f]
	return ok
}
