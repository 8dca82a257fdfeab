package ewf

const (
	// EVFSignature opens every primary segment file.
	EVFSignature = "EVF\x09\x0d\x0a\xff\x00"
	// LVFSignature opens logical evidence segment files.
	LVFSignature = "LVF\x09\x0d\x0a\xff\x00"
	// DVFSignature opens delta segment files.
	DVFSignature = "DVF\x09\x0d\x0a\xff\x00"
)

const (
	DefaultSectorsPerChunk = 64
	DefaultBytesPerSector  = 512
	DefaultChunkSize       = DefaultSectorsPerChunk * DefaultBytesPerSector
	ChecksumSize           = 4
	Uint32Size             = 4

	// DefaultSegmentFileSize is the write-side size budget per segment
	// when the caller does not set one: 1.5 GiB.
	DefaultSegmentFileSize = int64(1) << 30 / 2 * 3

	// DefaultChunkCacheSize bounds the decoded chunk cache on the read
	// path.
	DefaultChunkCacheSize = 16
)

const (
	EWF_SECTION_TYPE_HEADER  = "header"
	EWF_SECTION_TYPE_HEADER2 = "header2"
	EWF_SECTION_TYPE_XHEADER = "xheader"
	EWF_SECTION_TYPE_VOLUME  = "volume"
	EWF_SECTION_TYPE_DISK    = "disk"
	EWF_SECTION_TYPE_TABLE   = "table"
	EWF_SECTION_TYPE_TABLE2  = "table2"
	EWF_SECTION_TYPE_DATA    = "data"
	EWF_SECTION_TYPE_SECTORS = "sectors"
	EWF_SECTION_TYPE_ERROR2  = "error2"
	EWF_SECTION_TYPE_NEXT    = "next"
	EWF_SECTION_TYPE_SESSION = "session"
	EWF_SECTION_TYPE_HASH    = "hash"
	EWF_SECTION_TYPE_XHASH   = "xhash"
	EWF_SECTION_TYPE_DIGEST  = "digest"
	EWF_SECTION_TYPE_DONE    = "done"
	EWF_SECTION_TYPE_LTYPES  = "ltypes"
	EWF_SECTION_TYPE_LTREE   = "ltree"

	// EWF_SECTION_TYPE_DELTA_CHUNK carries one corrected chunk in a delta
	// segment file.
	EWF_SECTION_TYPE_DELTA_CHUNK = "delta_chunk"
)

var (
	newLineDelim = []byte{'\n'}
	fieldDelim   = []byte{'\t'}
)
