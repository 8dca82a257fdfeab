package ewf

import (
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
)

// AccessFlags select the open mode.
type AccessFlags uint8

const (
	AccessRead AccessFlags = 1 << iota
	AccessWrite
)

// AccessReadWrite opens the primary segments read-only and redirects chunk
// rewrites into delta segments.
const AccessReadWrite = AccessRead | AccessWrite

type handleState uint8

const (
	stateUninit handleState = iota
	stateOpenedRead
	stateOpenedWrite
	stateWriteInitialized
	stateFinalized
	stateOpenedReadWrite
	stateClosed
)

// Handle owns one opened image: the segment set, the geometry, the offset
// table, the error lists and the header values. It is not safe for
// concurrent use.
type Handle struct {
	logger zerolog.Logger
	flags  AccessFlags
	state  handleState
	format Format

	img       imageState
	crcErrors sectorErrorList

	segments      *EWFSegmentTable
	deltaSegments *EWFSegmentTable
	offsets       offsetTable

	headerValues *ValueTable
	hashValues   *ValueTable

	position   int64
	chunkCache *lru.Cache
	cacheSize  int

	wipeOnError bool

	basePath   string
	filenameFn SegmentFilenameFunc

	userMD5    [16]byte
	userMD5Set bool

	write *writeState
	delta *deltaWriteState
}

// Option adjusts a handle at open time.
type Option func(*Handle)

// WithLogger attaches a logger to the handle. The default logger discards
// everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handle) { h.logger = logger }
}

// WithChunkCacheSize bounds the decoded chunk cache of the read path.
func WithChunkCacheSize(chunks int) Option {
	return func(h *Handle) {
		if chunks > 0 {
			h.cacheSize = chunks
		}
	}
}

// WithSegmentFilenameFunc replaces the segment filename policy used on
// write.
func WithSegmentFilenameFunc(fn SegmentFilenameFunc) Option {
	return func(h *Handle) {
		if fn != nil {
			h.filenameFn = fn
		}
	}
}

// Open opens an image. With AccessRead, paths name the segment files (a
// single first-segment path is expanded to its siblings). With AccessWrite,
// the single path is the base name for generated segment files. With
// AccessReadWrite, segments open read-only and corrected chunks are
// redirected to delta segments.
func Open(paths []string, flags AccessFlags, opts ...Option) (*Handle, error) {
	if len(paths) == 0 {
		return nil, invalidf("handle", "at least one path is required")
	}
	for _, p := range paths {
		if p == "" {
			return nil, invalidf("handle", "empty path")
		}
	}

	h := &Handle{
		flags:        flags,
		format:       FormatEnCase5,
		cacheSize:    DefaultChunkCacheSize,
		filenameFn:   DefaultSegmentFilename,
		headerValues: NewValueTable(),
		hashValues:   NewValueTable(),
	}
	h.logger = zerolog.Nop()
	h.img.logger = h.logger

	for _, opt := range opts {
		opt(h)
	}
	h.img.logger = h.logger

	cache, err := lru.New(h.cacheSize)
	if err != nil {
		return nil, invalidf("handle", "chunk cache size %d: %v", h.cacheSize, err)
	}
	h.chunkCache = cache

	switch flags {
	case AccessRead:
		if err := h.openRead(paths); err != nil {
			return nil, err
		}
		h.state = stateOpenedRead

	case AccessWrite:
		if len(paths) != 1 {
			return nil, invalidf("handle", "write mode takes exactly one base path")
		}
		h.openWrite(paths[0])
		h.state = stateOpenedWrite

	case AccessReadWrite:
		if err := h.openRead(paths); err != nil {
			return nil, err
		}
		h.delta = newDeltaWriteState(paths[0])
		h.state = stateOpenedReadWrite

	default:
		return nil, invalidf("handle", "flags must include read or write")
	}

	return h, nil
}

func (h *Handle) openRead(paths []string) error {
	if len(paths) == 1 {
		discovered, err := discoverSegmentFiles(paths[0])
		if err != nil {
			return err
		}
		paths = discovered
	}

	h.segments = newSegmentTable()
	h.deltaSegments = newSegmentTable()

	for _, path := range paths {
		seg, err := openSegmentFile(path)
		if err != nil {
			h.segments.closeAll()
			h.deltaSegments.closeAll()
			return err
		}
		if seg.delta {
			h.deltaSegments.add(seg)
		} else {
			h.segments.add(seg)
		}
	}

	closeAll := func() {
		h.segments.closeAll()
		h.deltaSegments.closeAll()
	}

	if len(h.segments.Segments) == 0 {
		closeAll()
		return invalidf("handle", "no primary segment files given")
	}

	h.segments.sortByNumber()
	h.deltaSegments.sortByNumber()
	if err := h.segments.validateNumbering(); err != nil {
		closeAll()
		return err
	}

	for i, seg := range h.segments.Segments {
		if err := seg.Decode(&h.img); err != nil {
			closeAll()
			return err
		}

		last := i == len(h.segments.Segments)-1
		if last && seg.lastSectionType != EWF_SECTION_TYPE_DONE {
			closeAll()
			return corruptf("handle", "segment set is incomplete: %s does not end with done", seg.Path)
		}
		if !last && seg.lastSectionType != EWF_SECTION_TYPE_NEXT {
			closeAll()
			return corruptf("handle", "segment %s ends the image but %d more segments were given", seg.Path, len(h.segments.Segments)-1-i)
		}
	}

	if !h.img.mediaSet {
		closeAll()
		return corruptf("handle", "no volume or disk section in the segment set")
	}

	for i, seg := range h.segments.Segments {
		if err := seg.appendChunkEntries(&h.offsets, int32(i)); err != nil {
			closeAll()
			return err
		}
	}

	chunkSize := int64(h.img.media.ChunkSize())
	needed := (h.Size() + chunkSize - 1) / chunkSize
	if int64(h.offsets.len()) < needed {
		h.logger.Warn().Int64("needed", needed).Uint64("resolved", h.offsets.len()).Msg("geometry references more chunks than the tables resolve")
	}

	for i, seg := range h.deltaSegments.Segments {
		if err := h.applyDeltaSegment(seg, int32(i)); err != nil {
			closeAll()
			return err
		}
	}

	h.loadHeaderValues()
	h.loadHashValues()
	h.format = h.detectFormat()
	return nil
}

// detectFormat classifies an opened image by the sections it carries.
func (h *Handle) detectFormat() Format {
	switch {
	case h.img.xheader != nil || h.img.xhash != nil:
		return FormatEWFX
	case h.img.smartVolume:
		return FormatSMART
	case h.img.header2 != nil && h.img.digest != nil:
		return FormatEnCase5
	case h.img.header2 != nil:
		return FormatEnCase4
	default:
		return FormatEnCase2
	}
}

func (h *Handle) openWrite(basePath string) {
	h.basePath = basePath
	h.img.media = Media{
		SectorsPerChunk:  DefaultSectorsPerChunk,
		BytesPerSector:   DefaultBytesPerSector,
		MediaType:        Fixed,
		MediaFlags:       Image,
		ErrorGranularity: DefaultSectorsPerChunk,
		CompressionLevel: CompressionNone,
	}
	h.img.mediaSet = true
	h.write = newWriteState()
}

// loadHeaderValues merges the decoded header sections, preferring xheader
// over header2 over header.
func (h *Handle) loadHeaderValues() {
	for _, section := range []*EWFHeaderSection{h.img.xheader, h.img.header2, h.img.header} {
		if section != nil && section.Values != nil {
			h.headerValues = section.Values.clone()
			return
		}
	}
}

func (h *Handle) loadHashValues() {
	if h.img.digest != nil {
		h.hashValues.Set("MD5", hex.EncodeToString(h.img.digest.MD5[:]))
		h.hashValues.Set("SHA1", hex.EncodeToString(h.img.digest.SHA1[:]))
	}
	if h.img.hash != nil {
		h.hashValues.Set("MD5", hex.EncodeToString(h.img.hash.MD5[:]))
	}
	if h.img.xhash != nil {
		h.hashValues.Set("MD5", hex.EncodeToString(h.img.xhash.MD5[:]))
		h.hashValues.Set("SHA1", hex.EncodeToString(h.img.xhash.SHA1[:]))
	}
}

// Close releases the handle. A write handle that was never finalized is
// finalized implicitly.
func (h *Handle) Close() error {
	switch h.state {
	case stateClosed:
		return invalidf("handle", "already closed")
	case stateUninit:
		return invalidf("handle", "not open")
	}

	var firstErr error

	if (h.state == stateOpenedWrite || h.state == stateWriteInitialized) && h.write != nil && !h.write.finalized {
		if _, err := h.WriteFinalize(); err != nil {
			firstErr = err
		}
	}

	if h.delta != nil {
		if err := h.delta.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if h.segments != nil {
		if err := h.segments.closeAll(); err != nil && firstErr == nil {
			firstErr = wrapIO("handle", err)
		}
	}
	if h.deltaSegments != nil {
		if err := h.deltaSegments.closeAll(); err != nil && firstErr == nil {
			firstErr = wrapIO("handle", err)
		}
	}

	h.state = stateClosed
	return firstErr
}

// SegmentFiles exposes the decoded segment list of a read handle.
func (h *Handle) SegmentFiles() []*EWFSegment {
	if h.segments == nil {
		return nil
	}
	return h.segments.Segments
}

func (h *Handle) requireOpen(op string) error {
	switch h.state {
	case stateUninit, stateClosed:
		return invalidf(op, "handle is not open")
	}
	return nil
}

// requireWriteSetup gates the setters that are only legal before the first
// write freezes the geometry.
func (h *Handle) requireWriteSetup(op string) error {
	if h.state != stateOpenedWrite {
		return invalidf(op, "only valid on a write handle before the first write")
	}
	return nil
}
