package ewf

import "sort"

// EWFSegmentTable is the ordered list of segment files making up one image.
// A second instance holds the delta segments of a read-write open; the two
// never share files.
type EWFSegmentTable struct {
	Segments []*EWFSegment
}

func newSegmentTable() *EWFSegmentTable {
	return &EWFSegmentTable{}
}

func (st *EWFSegmentTable) add(seg *EWFSegment) {
	st.Segments = append(st.Segments, seg)
}

func (st *EWFSegmentTable) sortByNumber() {
	sort.SliceStable(st.Segments, func(i, j int) bool {
		return st.Segments[i].Number() < st.Segments[j].Number()
	})
}

// validateNumbering checks the one-based dense numbering the walker relies
// on.
func (st *EWFSegmentTable) validateNumbering() error {
	for i, seg := range st.Segments {
		if seg.Number() != uint16(i+1) {
			return corruptf("segment-table", "segment %s has number %d, expected %d", seg.Path, seg.Number(), i+1)
		}
	}
	return nil
}

func (st *EWFSegmentTable) closeAll() error {
	var firstErr error
	for _, seg := range st.Segments {
		if err := seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
