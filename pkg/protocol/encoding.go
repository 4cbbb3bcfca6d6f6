package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fruitsalade/networkfs/pkg/models"
)

// MaxIDDigits is the decimal width of the largest 64-bit identifier.
const MaxIDDigits = 20

var (
	ErrNameTooLong = errors.New("name too long")
	ErrInvalidID   = errors.New("invalid identifier")
)

// FormatID renders an identifier as minimal decimal ASCII.
func FormatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// ParseID parses the decimal form produced by FormatID. Signs, spaces and
// leading zeros are rejected so that every id has exactly one spelling.
func ParseID(s string) (uint64, error) {
	if s == "" || len(s) > MaxIDDigits || (len(s) > 1 && s[0] == '0') {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

// ValidateName checks the byte length bound shared with the directory service.
func ValidateName(name string) error {
	if len(name) > models.MaxNameLen {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	return nil
}

// KindParam renders a kind the way the create call expects it.
func KindParam(k models.Kind) string {
	if k.IsDir() {
		return "directory"
	}
	return "file"
}

// IDParam builds a parameter carrying an identifier.
func IDParam(key string, id uint64) Param {
	return Param{Key: key, Value: FormatID(id)}
}

// RedactToken shortens a credential for log output.
func RedactToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..."
}
