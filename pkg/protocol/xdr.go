package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/fruitsalade/networkfs/pkg/models"
)

const (
	// XDRVersion is carried as the first word of every XDR payload.
	XDRVersion uint32 = 2

	// XDRContentType is the media type of the XDR layout.
	XDRContentType = "application/vnd.networkfs.xdr"

	// DefaultXDRListingLimit bounds listing payloads when no limit is configured.
	DefaultXDRListingLimit = 1 << 20

	// Smallest encoded entry: kind, id, empty name.
	xdrMinEntrySize = 4 + 8 + 4
)

type xdrEntry struct {
	Kind uint32
	ID   uint64
	Name string
}

type xdrListing struct {
	Version uint32
	Entries []xdrEntry
}

type xdrEntryInfo struct {
	Version uint32
	Kind    uint32
	ID      uint64
}

type xdrCreateInfo struct {
	Version uint32
	ID      uint64
}

// XDRCodec implements the versioned XDR layout. Listings are variable-length
// arrays of variable-length records, so the page has no fixed capacity.
type XDRCodec struct {
	maxListing int
}

var _ Codec = (*XDRCodec)(nil)

// NewXDRCodec returns an XDR codec whose listing payloads may reach maxListing bytes.
func NewXDRCodec(maxListing int) *XDRCodec {
	if maxListing <= 0 {
		maxListing = DefaultXDRListingLimit
	}
	return &XDRCodec{maxListing: maxListing}
}

func (c *XDRCodec) Format() Format      { return FormatXDR }
func (c *XDRCodec) ContentType() string { return XDRContentType }
func (c *XDRCodec) MaxEntries() int     { return 0 }

func (c *XDRCodec) ResponseLimit(m Method) int {
	switch m {
	case MethodList:
		return c.maxListing
	case MethodLookup:
		return 16
	case MethodCreate, MethodMkdir:
		return 12
	default:
		return 0
	}
}

func (c *XDRCodec) WriteResponse(w io.Writer, status Status, payload []byte) error {
	if _, err := xdr.Marshal(w, int64(status)); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

func (c *XDRCodec) ReadResponse(body []byte) (Status, []byte, error) {
	if len(body) < HeaderSize {
		return 0, nil, fmt.Errorf("%w: %d byte response", ErrShortPayload, len(body))
	}
	var status int64
	if err := unmarshal(body[:HeaderSize], &status); err != nil {
		return 0, nil, fmt.Errorf("decode status: %w", err)
	}
	return Status(status), body[HeaderSize:], nil
}

func (c *XDRCodec) EncodeListing(page *models.ListingPage) ([]byte, error) {
	l := xdrListing{Version: XDRVersion, Entries: make([]xdrEntry, 0, page.Count())}
	for i, e := range page.Entries {
		if len(e.Name) > models.MaxNameLen {
			return nil, fmt.Errorf("%w: entry %d", ErrNameTooLong, i)
		}
		l.Entries = append(l.Entries, xdrEntry{Kind: uint32(e.Kind), ID: e.ID, Name: e.Name})
	}
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &l); err != nil {
		return nil, fmt.Errorf("encode listing: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *XDRCodec) DecodeListing(b []byte) (*models.ListingPage, error) {
	if err := checkVersion(b); err != nil {
		return nil, err
	}
	if len(b) < 8 {
		return nil, fmt.Errorf("%w: listing header", ErrShortPayload)
	}
	// Reject impossible counts before the decoder sizes the slice.
	count := binary.BigEndian.Uint32(b[4:8])
	if uint64(count)*xdrMinEntrySize > uint64(len(b)-8) {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrShortPayload, count, len(b))
	}

	var l xdrListing
	if err := unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	page := &models.ListingPage{Entries: make([]models.Entry, 0, len(l.Entries))}
	for i, e := range l.Entries {
		if len(e.Name) > models.MaxNameLen {
			return nil, fmt.Errorf("%w: entry %d is %d bytes", ErrMalformedName, i, len(e.Name))
		}
		if e.Kind > 0xff {
			return nil, fmt.Errorf("decode listing: entry %d has kind %d", i, e.Kind)
		}
		page.Entries = append(page.Entries, models.Entry{Name: e.Name, Kind: models.Kind(e.Kind), ID: e.ID})
	}
	return page, nil
}

func (c *XDRCodec) EncodeEntryInfo(info models.EntryInfo) ([]byte, error) {
	var buf bytes.Buffer
	v := xdrEntryInfo{Version: XDRVersion, Kind: uint32(info.Kind), ID: info.ID}
	if _, err := xdr.Marshal(&buf, &v); err != nil {
		return nil, fmt.Errorf("encode entry info: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *XDRCodec) DecodeEntryInfo(b []byte) (models.EntryInfo, error) {
	if err := checkVersion(b); err != nil {
		return models.EntryInfo{}, err
	}
	var v xdrEntryInfo
	if err := unmarshal(b, &v); err != nil {
		return models.EntryInfo{}, fmt.Errorf("decode entry info: %w", err)
	}
	if v.Kind > 0xff {
		return models.EntryInfo{}, fmt.Errorf("decode entry info: kind %d", v.Kind)
	}
	return models.EntryInfo{Kind: models.Kind(v.Kind), ID: v.ID}, nil
}

func (c *XDRCodec) EncodeCreateInfo(info models.CreateInfo) ([]byte, error) {
	var buf bytes.Buffer
	v := xdrCreateInfo{Version: XDRVersion, ID: info.ID}
	if _, err := xdr.Marshal(&buf, &v); err != nil {
		return nil, fmt.Errorf("encode create info: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *XDRCodec) DecodeCreateInfo(b []byte) (models.CreateInfo, error) {
	if err := checkVersion(b); err != nil {
		return models.CreateInfo{}, err
	}
	var v xdrCreateInfo
	if err := unmarshal(b, &v); err != nil {
		return models.CreateInfo{}, fmt.Errorf("decode create info: %w", err)
	}
	return models.CreateInfo{ID: v.ID}, nil
}

// unmarshal decodes b into v. No single element may claim more bytes than b
// holds, so a corrupt length prefix cannot size an allocation.
func unmarshal(b []byte, v interface{}) error {
	_, err := xdr.UnmarshalLimited(bytes.NewReader(b), v, uint(len(b)))
	return err
}

func checkVersion(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("%w: missing version", ErrShortPayload)
	}
	if v := binary.BigEndian.Uint32(b[:4]); v != XDRVersion {
		return fmt.Errorf("%w: %d", ErrUnknownVersion, v)
	}
	return nil
}
