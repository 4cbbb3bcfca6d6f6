package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fruitsalade/networkfs/pkg/models"
)

// Fixed layout sizes. Structs are little-endian with natural 8-byte alignment:
//
//	entry       { u8 kind; u8 pad[7]; u64 id; char name[256] }
//	entries     { u64 count; entry entries[16] }
//	entry_info  { u8 kind; u8 pad[7]; u64 id }
//	create_info { u64 id }
const (
	FixedNameSize       = models.MaxNameLen + 1
	FixedEntrySize      = 8 + 8 + FixedNameSize
	FixedListingSize    = 8 + models.MaxListingEntries*FixedEntrySize
	FixedEntryInfoSize  = 16
	FixedCreateInfoSize = 8
)

// FixedContentType is the media type of the fixed layout.
const FixedContentType = "application/vnd.networkfs.fixed"

// FixedCodec implements the positional layout.
type FixedCodec struct{}

var _ Codec = FixedCodec{}

func (FixedCodec) Format() Format      { return FormatFixed }
func (FixedCodec) ContentType() string { return FixedContentType }
func (FixedCodec) MaxEntries() int     { return models.MaxListingEntries }

func (FixedCodec) ResponseLimit(m Method) int {
	switch m {
	case MethodList:
		return FixedListingSize
	case MethodLookup:
		return FixedEntryInfoSize
	case MethodCreate, MethodMkdir:
		return FixedCreateInfoSize
	default:
		return 0
	}
}

func (FixedCodec) WriteResponse(w io.Writer, status Status, payload []byte) error {
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(status))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

func (FixedCodec) ReadResponse(body []byte) (Status, []byte, error) {
	if len(body) < HeaderSize {
		return 0, nil, fmt.Errorf("%w: %d byte response", ErrShortPayload, len(body))
	}
	status := Status(int64(binary.LittleEndian.Uint64(body[:HeaderSize])))
	return status, body[HeaderSize:], nil
}

func (FixedCodec) EncodeListing(page *models.ListingPage) ([]byte, error) {
	if page.Count() > models.MaxListingEntries {
		return nil, fmt.Errorf("%w: %d entries", ErrListingOverflow, page.Count())
	}
	buf := make([]byte, FixedListingSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(page.Count()))
	for i, e := range page.Entries {
		if len(e.Name) > models.MaxNameLen {
			return nil, fmt.Errorf("%w: entry %d", ErrNameTooLong, i)
		}
		rec := buf[8+i*FixedEntrySize : 8+(i+1)*FixedEntrySize]
		rec[0] = byte(e.Kind)
		binary.LittleEndian.PutUint64(rec[8:16], e.ID)
		copy(rec[16:], e.Name)
	}
	return buf, nil
}

// DecodeListing accepts any buffer that holds the header and the announced
// records; the trailing unused records of a full-size page are ignored.
func (FixedCodec) DecodeListing(b []byte) (*models.ListingPage, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("%w: listing header", ErrShortPayload)
	}
	count := binary.LittleEndian.Uint64(b[0:8])
	if count > models.MaxListingEntries {
		return nil, fmt.Errorf("%w: count %d", ErrListingOverflow, count)
	}
	n := int(count)
	if len(b) < 8+n*FixedEntrySize {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrShortPayload, n, len(b))
	}

	page := &models.ListingPage{Entries: make([]models.Entry, 0, n)}
	for i := 0; i < n; i++ {
		rec := b[8+i*FixedEntrySize : 8+(i+1)*FixedEntrySize]
		raw := rec[16:]
		end := bytes.IndexByte(raw, 0)
		if end < 0 {
			return nil, fmt.Errorf("%w: entry %d is not terminated", ErrMalformedName, i)
		}
		page.Entries = append(page.Entries, models.Entry{
			Name: string(raw[:end]),
			Kind: models.Kind(rec[0]),
			ID:   binary.LittleEndian.Uint64(rec[8:16]),
		})
	}
	return page, nil
}

func (FixedCodec) EncodeEntryInfo(info models.EntryInfo) ([]byte, error) {
	buf := make([]byte, FixedEntryInfoSize)
	buf[0] = byte(info.Kind)
	binary.LittleEndian.PutUint64(buf[8:16], info.ID)
	return buf, nil
}

func (FixedCodec) DecodeEntryInfo(b []byte) (models.EntryInfo, error) {
	if len(b) < FixedEntryInfoSize {
		return models.EntryInfo{}, fmt.Errorf("%w: entry info is %d bytes", ErrShortPayload, len(b))
	}
	return models.EntryInfo{
		Kind: models.Kind(b[0]),
		ID:   binary.LittleEndian.Uint64(b[8:16]),
	}, nil
}

func (FixedCodec) EncodeCreateInfo(info models.CreateInfo) ([]byte, error) {
	buf := make([]byte, FixedCreateInfoSize)
	binary.LittleEndian.PutUint64(buf, info.ID)
	return buf, nil
}

func (FixedCodec) DecodeCreateInfo(b []byte) (models.CreateInfo, error) {
	if len(b) < FixedCreateInfoSize {
		return models.CreateInfo{}, fmt.Errorf("%w: create info is %d bytes", ErrShortPayload, len(b))
	}
	return models.CreateInfo{ID: binary.LittleEndian.Uint64(b[:8])}, nil
}
