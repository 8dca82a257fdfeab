package ewf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SegmentFilenameFunc produces the path of a segment file from the base
// path, the one-based segment number and the output format.
type SegmentFilenameFunc func(basePath string, segmentNumber uint16, format Format) (string, error)

// DefaultSegmentFilename generates the conventional extension sequence:
// .E01 through .E99, then .EAA through .EZZ and onward, with the first
// letter chosen by the format (lowercase s for SMART).
func DefaultSegmentFilename(basePath string, segmentNumber uint16, format Format) (string, error) {
	ext, err := segmentExtension(format.plan().extensionLetter, segmentNumber)
	if err != nil {
		return "", err
	}
	return trimSegmentExtension(basePath) + "." + ext, nil
}

// deltaSegmentFilename names delta segment files .D01, .D02, ...
func deltaSegmentFilename(basePath string, segmentNumber uint16) (string, error) {
	ext, err := segmentExtension('D', segmentNumber)
	if err != nil {
		return "", err
	}
	return trimSegmentExtension(basePath) + "." + ext, nil
}

func segmentExtension(first byte, segmentNumber uint16) (string, error) {
	if segmentNumber == 0 {
		return "", invalidf("filename", "segment number must start at 1")
	}
	if segmentNumber < 100 {
		return fmt.Sprintf("%c%02d", first, segmentNumber), nil
	}

	// After 99 the two digits become letters: E99 is followed by EAA,
	// EAZ by EBA, EZZ by FAA.
	idx := int(segmentNumber) - 100
	letter := first + byte(idx/676)
	hi := byte('A' + (idx%676)/26)
	lo := byte('A' + idx%26)

	limit := byte('Z')
	if first >= 'a' {
		limit = 'z'
	}
	if letter > limit {
		return "", invalidf("filename", "segment number %d exceeds the extension space", segmentNumber)
	}
	return string([]byte{letter, hi, lo}), nil
}

// isSegmentExtension reports whether ext (without the dot) looks like a
// generated segment extension.
func isSegmentExtension(ext string) bool {
	if len(ext) != 3 {
		return false
	}
	c := ext[0]
	if !(c >= 'A' && c <= 'Z') && !(c >= 'a' && c <= 'z') {
		return false
	}
	rest := ext[1:]
	if rest[0] >= '0' && rest[0] <= '9' {
		return rest[1] >= '0' && rest[1] <= '9'
	}
	return rest[0] >= 'A' && rest[0] <= 'Z' && rest[1] >= 'A' && rest[1] <= 'Z'
}

func trimSegmentExtension(path string) string {
	ext := filepath.Ext(path)
	if ext != "" && isSegmentExtension(strings.TrimPrefix(ext, ".")) {
		return strings.TrimSuffix(path, ext)
	}
	return path
}

// discoverSegmentFiles expands the path of a first segment into the full
// ordered set by probing successive generated names until one is missing.
func discoverSegmentFiles(firstPath string) ([]string, error) {
	ext := strings.TrimPrefix(filepath.Ext(firstPath), ".")
	if !isSegmentExtension(ext) {
		return []string{firstPath}, nil
	}

	base := trimSegmentExtension(firstPath)
	first := ext[0]

	paths := []string{firstPath}
	for n := uint16(2); ; n++ {
		e, err := segmentExtension(first, n)
		if err != nil {
			break
		}
		p := base + "." + e
		if _, err := os.Stat(p); err != nil {
			break
		}
		paths = append(paths, p)
	}
	return paths, nil
}
