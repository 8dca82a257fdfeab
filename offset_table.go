package ewf

// chunkEntry locates one stored chunk. Entries live in a dense arena
// indexed by chunk number; invalid entries mark chunks whose table and
// table2 both failed verification.
type chunkEntry struct {
	segment    int32
	fileOffset int64
	size       uint32
	compressed bool
	valid      bool
	delta      bool
}

// offsetTable maps logical chunk index to physical location across the
// segment set.
type offsetTable struct {
	entries []chunkEntry
}

func (ot *offsetTable) len() uint64 {
	return uint64(len(ot.entries))
}

func (ot *offsetTable) append(e chunkEntry) {
	ot.entries = append(ot.entries, e)
}

// appendUnavailable reserves count chunk slots that cannot be resolved.
func (ot *offsetTable) appendUnavailable(count uint32) {
	for i := uint32(0); i < count; i++ {
		ot.entries = append(ot.entries, chunkEntry{})
	}
}

func (ot *offsetTable) entry(chunk uint64) (chunkEntry, error) {
	if chunk >= uint64(len(ot.entries)) {
		return chunkEntry{}, newErrorf(ErrChunkUnavailable, "offset-table", "chunk %d beyond table of %d entries", chunk, len(ot.entries))
	}
	e := ot.entries[chunk]
	if !e.valid {
		return chunkEntry{}, newErrorf(ErrChunkUnavailable, "offset-table", "chunk %d has no valid table entry", chunk)
	}
	return e, nil
}

// override redirects a chunk to a rewritten copy, e.g. in a delta segment.
func (ot *offsetTable) override(chunk uint64, e chunkEntry) error {
	if chunk >= uint64(len(ot.entries)) {
		return newErrorf(ErrChunkUnavailable, "offset-table", "chunk %d beyond table of %d entries", chunk, len(ot.entries))
	}
	ot.entries[chunk] = e
	return nil
}
