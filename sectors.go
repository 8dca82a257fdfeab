package ewf

import (
	"io"
)

// EWFSectorsSection frames the raw chunk payloads. The body is the chunk
// stream itself, so the descriptor is written as a placeholder when the
// section opens and re-encoded in place once the data size and the next
// section offset are known.
type EWFSectorsSection struct {
	position int64
}

func (d *EWFSectorsSection) Decode(fh io.ReadSeeker, section *SectionDescriptor) error {
	// sectors has no structured body; chunks are located via tables
	return nil
}

func (d *EWFSectorsSection) Encode(w io.WriteSeeker, dataSize, next uint64) (err error) {
	currentPosition, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapIO("sectors", err)
	}

	desc := NewSectionDescriptorData(EWF_SECTION_TYPE_SECTORS)
	desc.Size = dataSize + DescriptorSize
	desc.Next = next

	if d.position <= 0 {
		d.position = currentPosition
	} else {
		defer func() {
			_, errs := w.Seek(currentPosition, io.SeekStart)
			if errs != nil && err == nil {
				err = wrapIO("sectors", errs)
			}
		}()
	}

	if _, err = w.Seek(d.position, io.SeekStart); err != nil {
		return wrapIO("sectors", err)
	}

	err = writeDescriptorData(w, desc)
	return
}
