package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fruitsalade/networkfs/pkg/models"
)

// HeaderSize is the length of the status word that precedes every response payload.
const HeaderSize = 8

var (
	ErrShortPayload    = errors.New("payload too short")
	ErrListingOverflow = errors.New("listing exceeds page capacity")
	ErrMalformedName   = errors.New("malformed entry name")
	ErrUnknownVersion  = errors.New("unknown payload version")
	ErrUnknownFormat   = errors.New("unknown wire format")
)

// Format selects a wire encoding for response payloads.
type Format string

const (
	// FormatFixed is the positional little-endian layout with a 16-entry listing page.
	FormatFixed Format = "fixed"
	// FormatXDR is the versioned, length-prefixed XDR layout without a page cap.
	FormatXDR Format = "xdr"
)

// ParseFormat converts a configuration value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatFixed, "":
		return FormatFixed, nil
	case FormatXDR:
		return FormatXDR, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Codec encodes and decodes response payloads and their status framing.
type Codec interface {
	Format() Format
	ContentType() string

	// ResponseLimit is the largest payload a successful call of m may carry.
	ResponseLimit(m Method) int
	// MaxEntries is the listing page capacity, zero when unbounded.
	MaxEntries() int

	WriteResponse(w io.Writer, status Status, payload []byte) error
	ReadResponse(body []byte) (Status, []byte, error)

	EncodeListing(page *models.ListingPage) ([]byte, error)
	DecodeListing(b []byte) (*models.ListingPage, error)
	EncodeEntryInfo(info models.EntryInfo) ([]byte, error)
	DecodeEntryInfo(b []byte) (models.EntryInfo, error)
	EncodeCreateInfo(info models.CreateInfo) ([]byte, error)
	DecodeCreateInfo(b []byte) (models.CreateInfo, error)
}

// NewCodec returns the codec for f. maxListing bounds XDR listing payloads
// and is ignored by the fixed format; zero selects DefaultXDRListingLimit.
func NewCodec(f Format, maxListing int) (Codec, error) {
	switch f {
	case FormatFixed, "":
		return FixedCodec{}, nil
	case FormatXDR:
		return NewXDRCodec(maxListing), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// CodecForContentType picks the codec matching an Accept header, falling back to def.
func CodecForContentType(accept string, codecs []Codec, def Codec) Codec {
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		for _, c := range codecs {
			if strings.EqualFold(mediaType, c.ContentType()) {
				return c
			}
		}
	}
	return def
}
