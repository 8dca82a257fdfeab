package ewf

import (
	"compress/zlib"
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"hash"
	"io"
	"os"

	"github.com/dfirkit/go-ewf/shared"
)

// segmentTailReserve is budget kept free in every segment for the sections
// trailing the chunk data beyond the tables: next or done, and on the final
// segment error2, digest, hash and xhash.
const segmentTailReserve = 4096

// minSegmentFileSize is the smallest accepted segment size budget.
const minSegmentFileSize = int64(1) << 20

type writeState struct {
	initialized bool
	finalized   bool

	compressor    *shared.ZlibCompressor
	level         CompressionLevel
	compressEmpty bool
	staging       []byte

	segmentFileSize int64
	inputSize       int64
	padToInputSize  bool

	md5Hasher  hash.Hash
	sha1Hasher hash.Hash

	totalWritten int64
	chunkCount   uint64

	plan   sectionPlan
	volume *EWFVolumeSection

	cur              *writeSegment
	firstSegmentPath string
	segmentPaths     []string
}

type writeSegment struct {
	f      *os.File
	path   string
	number uint16

	sectors     *EWFSectorsSection
	sectorsData uint64
	tables      []*EWFTableSection
	chunks      uint64
}

func newWriteState() *writeState {
	return &writeState{
		level:           CompressionNone,
		segmentFileSize: DefaultSegmentFileSize,
		staging:         make([]byte, 0, DefaultChunkSize),
	}
}

// Write accepts media bytes. The first call freezes the geometry and lays
// down the leading sections of segment one.
func (h *Handle) Write(p []byte) (n int, err error) {
	if h.state != stateOpenedWrite && h.state != stateWriteInitialized {
		return 0, invalidf("write", "handle is not open for writing")
	}

	if !h.write.initialized {
		if err := h.writeInit(); err != nil {
			return 0, err
		}
	}

	w := h.write
	w.staging = append(w.staging, p...)
	n = len(p)

	chunkSize := int(h.img.media.ChunkSize())
	for len(w.staging) >= chunkSize {
		if err = h.writeChunk(w.staging[:chunkSize]); err != nil {
			return
		}
		w.staging = w.staging[chunkSize:]
	}

	return
}

// WriteFinalize flushes the pending chunk and closes the image: tables,
// error2, digests, hash and done land in the last segment and the volume
// is patched with the final counts. It returns the number of media bytes
// flushed from the staging buffer.
func (h *Handle) WriteFinalize() (int64, error) {
	if h.state != stateOpenedWrite && h.state != stateWriteInitialized {
		return 0, invalidf("write", "handle is not open for writing")
	}
	w := h.write
	if w.finalized {
		return 0, invalidf("write", "already finalized")
	}

	if !w.initialized {
		if err := h.writeInit(); err != nil {
			return 0, err
		}
	}

	var flushed int64

	if len(w.staging) > 0 {
		// the final chunk may be short, but always covers whole sectors
		bps := int(h.img.media.BytesPerSector)
		if pad := len(w.staging) % bps; pad != 0 {
			w.staging = shared.PadBytes(w.staging, len(w.staging)+bps-pad)
		}
		flushed = int64(len(w.staging))
		if err := h.writeChunk(w.staging); err != nil {
			return flushed, err
		}
		w.staging = w.staging[:0]
	}

	if w.inputSize > w.totalWritten {
		if err := h.reconcileInputSize(); err != nil {
			return flushed, err
		}
	}

	h.img.media.ChunkCount = w.chunkCount
	h.img.media.SectorCount = uint64(w.totalWritten) / uint64(h.img.media.BytesPerSector)

	if err := h.closeWriteSegment(true); err != nil {
		return flushed, err
	}

	w.finalized = true
	h.state = stateFinalized
	h.logger.Info().Uint64("chunks", w.chunkCount).Int64("bytes", w.totalWritten).Msg("image finalized")
	return flushed, nil
}

// writeInit validates the geometry, freezes it and opens segment one.
func (h *Handle) writeInit() error {
	w := h.write

	if !supportedWriteFormat(h.format) {
		return unsupportedf("write", "cannot produce format %v", h.format)
	}
	if err := h.img.media.validate(); err != nil {
		return err
	}
	if w.segmentFileSize < minSegmentFileSize {
		return invalidf("write", "segment file size %d below minimum %d", w.segmentFileSize, minSegmentFileSize)
	}

	w.plan = h.format.plan()

	var zeroGUID [16]byte
	if h.img.media.GUID == zeroGUID {
		h.img.media.GUID = NewImageGUID()
	}

	level := zlib.BestSpeed
	switch w.level {
	case CompressionGood:
		level = zlib.DefaultCompression
	case CompressionBest:
		level = zlib.BestCompression
	}
	compressor, err := shared.NewZlibCompressor(level)
	if err != nil {
		return wrapIO("write", err)
	}
	w.compressor = compressor

	w.md5Hasher = md5.New()
	w.sha1Hasher = sha1.New()

	w.volume = &EWFVolumeSection{Smart: w.plan.smartVolume}

	if err := h.openWriteSegment(1); err != nil {
		return err
	}

	w.initialized = true
	h.state = stateWriteInitialized
	h.logger.Debug().Str("format", h.format.String()).Uint32("chunk_size", h.img.media.ChunkSize()).Msg("write initialized")
	return nil
}

func (h *Handle) openWriteSegment(number uint16) error {
	w := h.write

	path, err := h.filenameFn(h.basePath, number, h.format)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return wrapIO("write", err)
	}

	seg := &writeSegment{
		f:      f,
		path:   path,
		number: number,
	}

	fileHeader := &EWFFileHeader{
		FieldsStart:   1,
		SegmentNumber: number,
		FieldsEnd:     0,
	}
	copy(fileHeader.Signature[:], []byte(EVFSignature))
	if err := fileHeader.Encode(f); err != nil {
		return wrapIO("write", err)
	}

	if number == 1 {
		w.firstSegmentPath = path
		if err := h.writeLeadingSections(f); err != nil {
			return err
		}
	} else if w.plan.writesData {
		d := new(EWFDataSection)
		if err := d.Encode(f, &h.img.media); err != nil {
			return err
		}
	}

	seg.sectors = new(EWFSectorsSection)
	if err := seg.sectors.Encode(f, 0, 0); err != nil {
		return err
	}
	seg.tables = []*EWFTableSection{newTable()}

	w.cur = seg
	w.segmentPaths = append(w.segmentPaths, path)
	h.logger.Debug().Str("path", path).Uint16("segment", number).Msg("segment opened")
	return nil
}

// writeLeadingSections emits the header variants and the volume placeholder
// at the start of segment one.
func (h *Handle) writeLeadingSections(f *os.File) error {
	w := h.write

	headerSection := &EWFHeaderSection{
		NofCategories: "1",
		CategoryName:  "main",
		Values:        h.headerValues,
	}

	if w.plan.header2Copies > 0 {
		if err := headerSection.Encode(f, EWF_SECTION_TYPE_HEADER2, w.plan.header2Copies); err != nil {
			return err
		}
	}
	if err := headerSection.Encode(f, EWF_SECTION_TYPE_HEADER, w.plan.headerCopies); err != nil {
		return err
	}
	if w.plan.writesXHeader {
		if err := headerSection.EncodeXHeader(f); err != nil {
			return err
		}
	}

	return w.volume.Encode(f, EWF_SECTION_TYPE_VOLUME, &h.img.media)
}

// writeChunk stores one chunk: the compression decision, the checksum, the
// budget check and the offset-table entry.
func (h *Handle) writeChunk(data []byte) error {
	w := h.write

	stored, compressed, err := h.encodeChunk(data)
	if err != nil {
		return err
	}

	if err := h.ensureSegmentCapacity(int64(len(stored))); err != nil {
		return err
	}

	cur := w.cur
	position, err := cur.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapIO("write", err)
	}

	if _, err := cur.f.Write(stored); err != nil {
		return wrapIO("write", err)
	}

	t := cur.tables[len(cur.tables)-1]
	if !t.addEntry(position, compressed, w.plan.maxTableEntries) {
		t = newTable()
		cur.tables = append(cur.tables, t)
		if !t.addEntry(position, compressed, w.plan.maxTableEntries) {
			return invalidf("write", "chunk offset %d not representable", position)
		}
	}

	h.offsets.append(chunkEntry{
		segment:    int32(cur.number - 1),
		fileOffset: position,
		size:       uint32(len(stored)),
		compressed: compressed,
		valid:      true,
	})

	cur.sectorsData += uint64(len(stored))
	cur.chunks++
	w.chunkCount++
	w.totalWritten += int64(len(data))

	if _, err := w.md5Hasher.Write(data); err != nil {
		return wrapIO("write", err)
	}
	if _, err := w.sha1Hasher.Write(data); err != nil {
		return wrapIO("write", err)
	}
	return nil
}

// encodeChunk applies the compression decision. Compressed chunks carry no
// separate checksum (the deflate stream self-checks); uncompressed chunks
// get the adler32 trailer.
func (h *Handle) encodeChunk(data []byte) (stored []byte, compressed bool, err error) {
	w := h.write

	try := w.level != CompressionNone
	if !try && w.compressEmpty && shared.AllBytesEqual(data) {
		try = true
	}

	if try {
		c, err := w.compressor.Compress(data)
		if err != nil {
			return nil, false, wrapIO("write", err)
		}
		if len(c) < len(data)-ChecksumSize {
			return c, true, nil
		}
	}

	stored = make([]byte, 0, len(data)+ChecksumSize)
	stored = append(stored, data...)
	stored = binary.LittleEndian.AppendUint32(stored, shared.NewChunkSum(data))
	return stored, false, nil
}

// ensureSegmentCapacity rolls to the next segment when the projected chunk
// plus the trailing table, table2 and next sections no longer fit the
// budget. A segment always accepts at least one chunk.
func (h *Handle) ensureSegmentCapacity(projected int64) error {
	w := h.write
	cur := w.cur

	if cur.chunks == 0 {
		return nil
	}

	offset, err := cur.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapIO("write", err)
	}

	needed := projected + cur.tablesOverhead() + segmentTailReserve
	if offset+needed <= w.segmentFileSize {
		return nil
	}

	if err := h.closeWriteSegment(false); err != nil {
		return err
	}
	return h.openWriteSegment(cur.number + 1)
}

// tablesOverhead projects the encoded size of this segment's table and
// table2 sections with one more entry added.
func (seg *writeSegment) tablesOverhead() int64 {
	var total int64
	for _, t := range seg.tables {
		total += int64(DescriptorSize) + int64(t.dataSize())
	}
	// one more entry, possibly in a fresh table
	total += int64(DescriptorSize) + int64(tableSectionHeaderSize) + Uint32Size + ChecksumSize
	// table2 duplicates everything
	return total * 2
}

// closeWriteSegment patches the sectors descriptor, writes the tables and
// the terminal sections, then closes the file. With terminal set it ends
// the image: error2, digest, hash, xhash per format plan, then done.
func (h *Handle) closeWriteSegment(terminal bool) error {
	w := h.write
	cur := w.cur
	if cur == nil {
		return nil
	}

	tablePosition, err := cur.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapIO("write", err)
	}

	if err := cur.sectors.Encode(cur.f, cur.sectorsData, uint64(tablePosition)); err != nil {
		return err
	}

	for _, t := range cur.tables {
		if err := t.Encode(cur.f, EWF_SECTION_TYPE_TABLE); err != nil {
			return err
		}
		if err := t.Encode(cur.f, EWF_SECTION_TYPE_TABLE2); err != nil {
			return err
		}
	}

	if terminal {
		if err := h.writeTrailingSections(cur.f); err != nil {
			return err
		}
		if err := h.patchVolume(cur); err != nil {
			return err
		}
	} else {
		next := new(EWFNextSection)
		if err := next.Encode(cur.f); err != nil {
			return err
		}
	}

	if err := cur.f.Close(); err != nil {
		return wrapIO("write", err)
	}
	w.cur = nil
	return nil
}

func (h *Handle) writeTrailingSections(f *os.File) error {
	w := h.write

	if w.plan.writesError2 && h.img.acquiryErrors.len() > 0 {
		e := &EWFError2Section{Errors: h.img.acquiryErrors.entries}
		if err := e.Encode(f); err != nil {
			return err
		}
	}

	var md5Sum [16]byte
	copy(md5Sum[:], w.md5Hasher.Sum(nil))
	if h.userMD5Set {
		md5Sum = h.userMD5
	}
	var sha1Sum [20]byte
	copy(sha1Sum[:], w.sha1Hasher.Sum(nil))

	if w.plan.writesDigest {
		digest := &EWFDigestSection{MD5: md5Sum, SHA1: sha1Sum}
		if err := digest.Encode(f); err != nil {
			return err
		}
		h.img.digest = digest
	}

	hashSection := &EWFHashSection{MD5: md5Sum}
	if h.img.hash != nil {
		// an image being rewritten keeps its undocumented trailer bytes
		hashSection.Unknown = h.img.hash.Unknown
	}
	if err := hashSection.Encode(f); err != nil {
		return err
	}
	h.img.hash = hashSection

	if w.plan.writesXHash {
		x := &EWFXHashSection{MD5: md5Sum, SHA1: sha1Sum}
		if err := x.Encode(f); err != nil {
			return err
		}
		h.img.xhash = x
	}

	done := new(EWFDoneSection)
	return done.Encode(f)
}

// patchVolume re-encodes the volume section of segment one with the final
// chunk and sector counts.
func (h *Handle) patchVolume(cur *writeSegment) error {
	w := h.write

	if cur.number == 1 {
		return w.volume.Encode(cur.f, EWF_SECTION_TYPE_VOLUME, &h.img.media)
	}

	f, err := os.OpenFile(w.firstSegmentPath, os.O_RDWR, 0)
	if err != nil {
		return wrapIO("write", err)
	}
	defer f.Close()
	return w.volume.Encode(f, EWF_SECTION_TYPE_VOLUME, &h.img.media)
}

// reconcileInputSize applies the short-input policy when the stream ended
// before the advertised input size: pad with zero chunks and record the
// missing range as acquisition errors, or fall through and let the sector
// count shrink.
func (h *Handle) reconcileInputSize() error {
	w := h.write

	missing := w.inputSize - w.totalWritten
	if missing <= 0 || !w.padToInputSize {
		return nil
	}

	bps := uint64(h.img.media.BytesPerSector)
	firstMissing := uint64(w.totalWritten) / bps
	missingSectors := (uint64(missing) + bps - 1) / bps
	h.img.acquiryErrors.add(firstMissing, uint32(missingSectors))

	chunkSize := int64(h.img.media.ChunkSize())
	zero := make([]byte, chunkSize)
	for missing > 0 {
		n := chunkSize
		if missing < n {
			n = missing
			if pad := n % int64(bps); pad != 0 {
				n += int64(bps) - pad
			}
		}
		if err := h.writeChunk(zero[:n]); err != nil {
			return err
		}
		missing -= n
	}
	return nil
}

// GetWriteAmountOfChunks returns the number of chunks stored so far.
func (h *Handle) GetWriteAmountOfChunks() (uint64, error) {
	if h.write == nil {
		return 0, invalidf("write", "handle is not open for writing")
	}
	return h.write.chunkCount, nil
}
