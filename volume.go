package ewf

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/dfirkit/go-ewf/shared"
)

// EWFVolumeSectionData is the EnCase volume/disk body. ChunkCountHigh holds
// the upper 32 bits of the chunk count for images beyond 4G chunks.
type EWFVolumeSectionData struct {
	MediaType        MediaType
	Reserved1        [3]byte
	ChunkCount       uint32
	SectorCount      uint32
	SectorSize       uint32
	TotalSectorCount uint64
	NumCylinders     uint32
	NumHeads         uint32
	NumSectors       uint32
	MediaFlags       MediaFlags
	Unknown1         [3]byte
	PalmStartSector  uint32
	ChunkCountHigh   uint32
	SmartStartSector uint32
	CompressionLevel CompressionLevel
	Unknown3         [3]byte
	ErrorGranularity uint32
	Unknown4         uint32
	UUID             [16]byte
	Pad              [963]byte
	Signature        [5]byte
	Checksum         uint32
}

// EWFVolumeSectionSpecData is the short SMART volume body.
type EWFVolumeSectionSpecData struct {
	Reserved         uint32
	ChunkCount       uint32
	SectorCount      uint32
	SectorSize       uint32
	TotalSectorCount uint32
	Reserved1        [20]byte
	Pad              [45]byte
	Signature        [5]byte
	Checksum         uint32
}

var (
	volumeSectionDataSize = uint64(binary.Size(&EWFVolumeSectionData{}))
	volumeSectionSpecSize = uint64(binary.Size(&EWFVolumeSectionSpecData{}))
)

// EWFVolumeSection carries the media geometry. On write the section is
// emitted early as a placeholder and re-encoded in place at finalize, when
// the chunk count is known.
type EWFVolumeSection struct {
	Smart bool

	position int64
}

func (v *EWFVolumeSection) Decode(fh io.ReadSeeker, section *SectionDescriptor, media *Media) error {
	if _, err := fh.Seek(section.DataOffset, io.SeekStart); err != nil {
		return wrapIO("volume", err)
	}

	if section.DataSize() == volumeSectionDataSize {
		var data EWFVolumeSectionData
		if err := shared.ReadWithSum(fh, &data); err != nil {
			if errors.Is(err, shared.ErrChecksumMismatch) {
				return corruptf("volume", "volume body checksum mismatch at 0x%x", section.Offset)
			}
			return wrapIO("volume", err)
		}

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

	if section.DataSize() == volumeSectionSpecSize {
		var data EWFVolumeSectionSpecData
		if err := shared.ReadWithSum(fh, &data); err != nil {
			if errors.Is(err, shared.ErrChecksumMismatch) {
				return corruptf("volume", "volume body checksum mismatch at 0x%x", section.Offset)
			}
			return wrapIO("volume", err)
		}

		v.Smart = true
		media.SectorsPerChunk = data.SectorCount
		media.BytesPerSector = data.SectorSize
		media.ChunkCount = uint64(data.ChunkCount)
		media.SectorCount = uint64(data.TotalSectorCount)
		media.MediaType = Fixed
		return media.validate()
	}

	return unsupportedf("volume", "volume section body of %d bytes", section.DataSize())
}

// Encode writes the volume section for media. The first call records the
// section position; later calls re-encode at that position and restore the
// file offset, so finalize can patch the chunk count in place.
func (v *EWFVolumeSection) Encode(w io.WriteSeeker, sectionType string, media *Media) (err error) {
	currentPosition, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapIO("volume", err)
	}

	if v.position <= 0 {
		v.position = currentPosition
	} else {
		defer func() {
			_, errs := w.Seek(currentPosition, io.SeekStart)
			if errs != nil && err == nil {
				err = wrapIO("volume", errs)
			}
		}()
		if _, err = w.Seek(v.position, io.SeekStart); err != nil {
			return wrapIO("volume", err)
		}
	}

	if v.Smart {
		return v.encodeSmart(w, sectionType, media)
	}
	return v.encodeLong(w, sectionType, media)
}

func (v *EWFVolumeSection) encodeLong(w io.WriteSeeker, sectionType string, media *Media) error {
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

	if _, err := writeSectionDescriptor(w, sectionType, volumeSectionDataSize); err != nil {
		return err
	}
	if _, _, err := shared.WriteWithSum(w, &data); err != nil {
		return wrapIO("volume", err)
	}
	return nil
}

func (v *EWFVolumeSection) encodeSmart(w io.WriteSeeker, sectionType string, media *Media) error {
	data := EWFVolumeSectionSpecData{
		Reserved:         1,
		ChunkCount:       uint32(media.ChunkCount),
		SectorCount:      media.SectorsPerChunk,
		SectorSize:       media.BytesPerSector,
		TotalSectorCount: uint32(media.SectorCount),
	}

	if _, err := writeSectionDescriptor(w, sectionType, volumeSectionSpecSize); err != nil {
		return err
	}
	if _, _, err := shared.WriteWithSum(w, &data); err != nil {
		return wrapIO("volume", err)
	}
	return nil
}

// NewImageGUID generates the identity stamped into fresh volume sections.
func NewImageGUID() [16]byte {
	return uuid.New()
}
