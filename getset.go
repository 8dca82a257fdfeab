package ewf

// Geometry and identity accessors. Getters work on any open handle;
// setters are gated to a write handle whose geometry is not yet frozen.

func (h *Handle) GetSectorsPerChunk() (uint32, error) {
	if err := h.requireOpen("media"); err != nil {
		return 0, err
	}
	return h.img.media.SectorsPerChunk, nil
}

func (h *Handle) GetBytesPerSector() (uint32, error) {
	if err := h.requireOpen("media"); err != nil {
		return 0, err
	}
	return h.img.media.BytesPerSector, nil
}

func (h *Handle) GetChunkSize() (uint32, error) {
	if err := h.requireOpen("media"); err != nil {
		return 0, err
	}
	return h.img.media.ChunkSize(), nil
}

func (h *Handle) GetAmountOfSectors() (uint64, error) {
	if err := h.requireOpen("media"); err != nil {
		return 0, err
	}
	return h.img.media.SectorCount, nil
}

func (h *Handle) GetMediaSize() (int64, error) {
	if err := h.requireOpen("media"); err != nil {
		return 0, err
	}
	return h.img.media.Size(), nil
}

func (h *Handle) GetMediaType() (MediaType, error) {
	if err := h.requireOpen("media"); err != nil {
		return 0, err
	}
	return h.img.media.MediaType, nil
}

func (h *Handle) GetMediaFlags() (MediaFlags, error) {
	if err := h.requireOpen("media"); err != nil {
		return 0, err
	}
	return h.img.media.MediaFlags, nil
}

func (h *Handle) GetCompressionLevel() (CompressionLevel, error) {
	if err := h.requireOpen("media"); err != nil {
		return 0, err
	}
	return h.img.media.CompressionLevel, nil
}

func (h *Handle) GetErrorGranularity() (uint32, error) {
	if err := h.requireOpen("media"); err != nil {
		return 0, err
	}
	return h.img.media.ErrorGranularity, nil
}

func (h *Handle) GetFormat() (Format, error) {
	if err := h.requireOpen("format"); err != nil {
		return 0, err
	}
	return h.format, nil
}

func (h *Handle) GetGUID() ([16]byte, error) {
	if err := h.requireOpen("media"); err != nil {
		return [16]byte{}, err
	}
	return h.img.media.GUID, nil
}

// GetMD5Hash returns the stored MD5: the hash section of a read image, or
// the computed digest after finalize on a write handle.
func (h *Handle) GetMD5Hash() ([]byte, error) {
	if err := h.requireOpen("hash"); err != nil {
		return nil, err
	}
	if h.img.hash == nil {
		return nil, invalidf("hash", "no MD5 hash present")
	}
	out := make([]byte, len(h.img.hash.MD5))
	copy(out, h.img.hash.MD5[:])
	return out, nil
}

// GetSHA1Hash returns the stored SHA1 when the image carries a digest or
// xhash section.
func (h *Handle) GetSHA1Hash() ([]byte, error) {
	if err := h.requireOpen("hash"); err != nil {
		return nil, err
	}
	switch {
	case h.img.digest != nil:
		out := make([]byte, len(h.img.digest.SHA1))
		copy(out, h.img.digest.SHA1[:])
		return out, nil
	case h.img.xhash != nil:
		out := make([]byte, len(h.img.xhash.SHA1))
		copy(out, h.img.xhash.SHA1[:])
		return out, nil
	}
	return nil, invalidf("hash", "no SHA1 hash present")
}

func (h *Handle) SetSectorsPerChunk(sectorsPerChunk uint32) error {
	if err := h.requireWriteSetup("media"); err != nil {
		return err
	}
	if sectorsPerChunk == 0 {
		return invalidf("media", "sectors per chunk is zero")
	}
	h.img.media.SectorsPerChunk = sectorsPerChunk
	return nil
}

func (h *Handle) SetBytesPerSector(bytesPerSector uint32) error {
	if err := h.requireWriteSetup("media"); err != nil {
		return err
	}
	if bytesPerSector == 0 {
		return invalidf("media", "bytes per sector is zero")
	}
	h.img.media.BytesPerSector = bytesPerSector
	return nil
}

// SetGUID is write-once.
func (h *Handle) SetGUID(guid [16]byte) error {
	if err := h.requireWriteSetup("media"); err != nil {
		return err
	}
	var zero [16]byte
	if h.img.media.GUID != zero {
		return invalidf("media", "GUID already set")
	}
	h.img.media.GUID = guid
	return nil
}

// SetMD5Hash fixes the MD5 written at finalize, overriding the digest
// computed from the stream. Write-once.
func (h *Handle) SetMD5Hash(md5Hash []byte) error {
	if err := h.requireWriteSetup("hash"); err != nil {
		return err
	}
	if len(md5Hash) != len(h.userMD5) {
		return invalidf("hash", "MD5 hash must be %d bytes", len(h.userMD5))
	}
	if h.userMD5Set {
		return invalidf("hash", "MD5 hash already set")
	}
	copy(h.userMD5[:], md5Hash)
	h.userMD5Set = true
	return nil
}

func (h *Handle) SetWriteSegmentFileSize(size int64) error {
	if err := h.requireWriteSetup("write"); err != nil {
		return err
	}
	if size < minSegmentFileSize {
		return invalidf("write", "segment file size %d below minimum %d", size, minSegmentFileSize)
	}
	h.write.segmentFileSize = size
	return nil
}

func (h *Handle) SetWriteCompressionValues(level CompressionLevel, compressEmptyBlock bool) error {
	if err := h.requireWriteSetup("write"); err != nil {
		return err
	}
	switch level {
	case CompressionNone, CompressionGood, CompressionBest:
	default:
		return invalidf("write", "unknown compression level %d", level)
	}
	h.write.level = level
	h.write.compressEmpty = compressEmptyBlock
	h.img.media.CompressionLevel = level
	return nil
}

func (h *Handle) SetWriteMediaType(mediaType MediaType, physical bool) error {
	if err := h.requireWriteSetup("media"); err != nil {
		return err
	}
	h.img.media.MediaType = mediaType
	if physical {
		h.img.media.MediaFlags |= Physical
	} else {
		h.img.media.MediaFlags &^= Physical
	}
	return nil
}

func (h *Handle) SetWriteFormat(format Format) error {
	if err := h.requireWriteSetup("write"); err != nil {
		return err
	}
	if !supportedWriteFormat(format) {
		return unsupportedf("write", "cannot produce format %v", format)
	}
	h.format = format
	return nil
}

// SetWriteInputSize advertises how many media bytes the caller intends to
// write. Combined with SetWritePadToInputSize it selects the short-input
// policy at finalize.
func (h *Handle) SetWriteInputSize(size int64) error {
	if err := h.requireWriteSetup("write"); err != nil {
		return err
	}
	if size < 0 {
		return invalidf("write", "negative input size")
	}
	h.write.inputSize = size
	return nil
}

// SetWritePadToInputSize selects padding with zeros plus an acquisition
// error entry over shrinking the sector count when the input stream ends
// early.
func (h *Handle) SetWritePadToInputSize(pad bool) error {
	if err := h.requireWriteSetup("write"); err != nil {
		return err
	}
	h.write.padToInputSize = pad
	return nil
}

func (h *Handle) SetWriteErrorGranularity(sectors uint32) error {
	if err := h.requireWriteSetup("media"); err != nil {
		return err
	}
	if sectors == 0 {
		return invalidf("media", "error granularity is zero")
	}
	h.img.media.ErrorGranularity = sectors
	return nil
}

// SetReadWipeChunkOnError selects whether chunks failing verification read
// back as zeros.
func (h *Handle) SetReadWipeChunkOnError(wipe bool) error {
	if err := h.requireOpen("read"); err != nil {
		return err
	}
	h.wipeOnError = wipe
	return nil
}

// Acquisition and checksum error bookkeeping.

func (h *Handle) AddAcquiryError(sector uint64, amountOfSectors uint32) error {
	if err := h.requireOpen("error"); err != nil {
		return err
	}
	if amountOfSectors == 0 {
		return invalidf("error", "empty sector range")
	}
	h.img.acquiryErrors.add(sector, amountOfSectors)
	return nil
}

func (h *Handle) GetAmountOfAcquiryErrors() (uint32, error) {
	if err := h.requireOpen("error"); err != nil {
		return 0, err
	}
	return uint32(h.img.acquiryErrors.len()), nil
}

func (h *Handle) GetAcquiryError(index int) (SectorError, error) {
	if err := h.requireOpen("error"); err != nil {
		return SectorError{}, err
	}
	e, ok := h.img.acquiryErrors.get(index)
	if !ok {
		return SectorError{}, invalidf("error", "acquiry error index %d out of range", index)
	}
	return e, nil
}

func (h *Handle) AddCRCError(sector uint64, amountOfSectors uint32) error {
	if err := h.requireOpen("error"); err != nil {
		return err
	}
	if amountOfSectors == 0 {
		return invalidf("error", "empty sector range")
	}
	h.crcErrors.add(sector, amountOfSectors)
	return nil
}

func (h *Handle) GetAmountOfCRCErrors() (uint32, error) {
	if err := h.requireOpen("error"); err != nil {
		return 0, err
	}
	return uint32(h.crcErrors.len()), nil
}

func (h *Handle) GetCRCError(index int) (SectorError, error) {
	if err := h.requireOpen("error"); err != nil {
		return SectorError{}, err
	}
	e, ok := h.crcErrors.get(index)
	if !ok {
		return SectorError{}, invalidf("error", "crc error index %d out of range", index)
	}
	return e, nil
}

// Header and hash value tables.

func (h *Handle) SetHeaderValue(identifier, value string) error {
	if err := h.requireWriteSetup("header"); err != nil {
		return err
	}
	if identifier == "" {
		return invalidf("header", "empty identifier")
	}
	h.headerValues.Set(identifier, value)
	return nil
}

func (h *Handle) GetHeaderValue(identifier string) (string, error) {
	if err := h.requireOpen("header"); err != nil {
		return "", err
	}
	v, ok := h.headerValues.Get(identifier)
	if !ok {
		return "", invalidf("header", "no header value %q", identifier)
	}
	return v, nil
}

func (h *Handle) GetAmountOfHeaderValues() (int, error) {
	if err := h.requireOpen("header"); err != nil {
		return 0, err
	}
	return h.headerValues.Len(), nil
}

func (h *Handle) GetHeaderValueIdentifier(index int) (string, error) {
	if err := h.requireOpen("header"); err != nil {
		return "", err
	}
	id, ok := h.headerValues.Identifier(index)
	if !ok {
		return "", invalidf("header", "header value index %d out of range", index)
	}
	return id, nil
}

// ParseHeaderValues rebuilds the header values from the decoded sections,
// preferring xheader over header2 over header, and renders the acquiry and
// system dates in the requested format.
func (h *Handle) ParseHeaderValues(dateFormat DateFormat) error {
	if err := h.requireOpen("header"); err != nil {
		return err
	}
	h.loadHeaderValues()
	h.headerValues.convertHeaderDates(dateFormat)
	return nil
}

// CopyHeaderValues copies the source handle's header values, preserving
// their order, into a destination write handle.
func CopyHeaderValues(dst, src *Handle) error {
	if dst == nil || src == nil {
		return invalidf("header", "nil handle")
	}
	if err := dst.requireWriteSetup("header"); err != nil {
		return err
	}
	if err := src.requireOpen("header"); err != nil {
		return err
	}
	dst.headerValues = src.headerValues.clone()
	return nil
}

func (h *Handle) SetHashValue(identifier, value string) error {
	if err := h.requireWriteSetup("hash"); err != nil {
		return err
	}
	if identifier == "" {
		return invalidf("hash", "empty identifier")
	}
	h.hashValues.Set(identifier, value)
	return nil
}

func (h *Handle) GetHashValue(identifier string) (string, error) {
	if err := h.requireOpen("hash"); err != nil {
		return "", err
	}
	v, ok := h.hashValues.Get(identifier)
	if !ok {
		return "", invalidf("hash", "no hash value %q", identifier)
	}
	return v, nil
}

func (h *Handle) GetAmountOfHashValues() (int, error) {
	if err := h.requireOpen("hash"); err != nil {
		return 0, err
	}
	return h.hashValues.Len(), nil
}

func (h *Handle) GetHashValueIdentifier(index int) (string, error) {
	if err := h.requireOpen("hash"); err != nil {
		return "", err
	}
	id, ok := h.hashValues.Identifier(index)
	if !ok {
		return "", invalidf("hash", "hash value index %d out of range", index)
	}
	return id, nil
}

// ParseHashValues refreshes the hash values from the decoded hash, digest
// and xhash sections.
func (h *Handle) ParseHashValues() error {
	if err := h.requireOpen("hash"); err != nil {
		return err
	}
	h.loadHashValues()
	return nil
}
