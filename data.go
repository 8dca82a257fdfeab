package ewf

import (
	"errors"
	"io"

	"github.com/dfirkit/go-ewf/shared"
)

// EWFDataSection mirrors the volume geometry at the start of segment files
// after the first one. The body layout equals the EnCase volume body.
type EWFDataSection struct{}

func (d *EWFDataSection) Decode(fh io.ReadSeeker, section *SectionDescriptor, media *Media) error {
	if _, err := fh.Seek(section.DataOffset, io.SeekStart); err != nil {
		return wrapIO("data", err)
	}

	var data EWFVolumeSectionData
	if err := shared.ReadWithSum(fh, &data); err != nil {
		if errors.Is(err, shared.ErrChecksumMismatch) {
			return corruptf("data", "data body checksum mismatch at 0x%x", section.Offset)
		}
		return wrapIO("data", err)
	}

	// The data section repeats what the first segment's volume already
	// provided; fill the media only when the volume has not been seen.
	if media.SectorsPerChunk == 0 {
		media.SectorsPerChunk = data.SectorCount
		media.BytesPerSector = data.SectorSize
		media.ChunkCount = uint64(data.ChunkCountHigh)<<32 | uint64(data.ChunkCount)
		media.SectorCount = data.TotalSectorCount
		media.MediaType = data.MediaType
		media.MediaFlags = data.MediaFlags
		media.CompressionLevel = data.CompressionLevel
		media.ErrorGranularity = data.ErrorGranularity
		media.GUID = data.UUID
		return media.validate()
	}
	return nil
}

func (d *EWFDataSection) Encode(w io.WriteSeeker, media *Media) error {
	data := EWFVolumeSectionData{
		MediaType:        media.MediaType,
		ChunkCount:       uint32(media.ChunkCount),
		ChunkCountHigh:   uint32(media.ChunkCount >> 32),
		SectorCount:      media.SectorsPerChunk,
		SectorSize:       media.BytesPerSector,
		TotalSectorCount: media.SectorCount,
		MediaFlags:       media.MediaFlags,
		CompressionLevel: media.CompressionLevel,
		ErrorGranularity: media.ErrorGranularity,
		UUID:             media.GUID,
	}

	if _, err := writeSectionDescriptor(w, EWF_SECTION_TYPE_DATA, volumeSectionDataSize); err != nil {
		return err
	}
	if _, _, err := shared.WriteWithSum(w, &data); err != nil {
		return wrapIO("data", err)
	}
	return nil
}
