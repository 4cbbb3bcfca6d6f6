package netfs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/metrics"
	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/protocol"
)

// DirEntry is one member emitted during iteration.
type DirEntry struct {
	Name string
	ID   uint64
	Kind models.Kind
	// Pos is the cursor position this entry occupies.
	Pos int64
}

// Iterate emits the members of directory dirID starting at *pos and advances
// *pos past every entry emit accepts. Position 0 is ".", position 1 is ".."
// (bound to parentID) and position n >= 2 is remote entry n-2.
//
// Each invocation fetches the full listing. When emit returns false the
// invocation stops and *pos stays on the refused entry. The return value is
// the number of entries emitted; zero signals the end of the directory.
// A failed listing emits nothing.
func (s *Session) Iterate(ctx context.Context, dirID, parentID uint64, pos *int64, emit func(DirEntry) bool) (int, error) {
	if pos == nil || *pos < 0 {
		return 0, fmt.Errorf("%w: bad cursor", ErrInvalidArgument)
	}

	payload, err := s.call(ctx, protocol.MethodList, protocol.IDParam("inode", dirID))
	if err != nil {
		s.log.Warn("list failed", zap.Uint64("dir", dirID), zap.Error(err))
		return 0, err
	}
	page, err := s.codec.DecodeListing(payload)
	if err != nil {
		return 0, malformed(protocol.MethodList, err)
	}
	for i, e := range page.Entries {
		if !e.Kind.Valid() {
			return 0, malformed(protocol.MethodList, fmt.Errorf("entry %d (%q) has kind %d", i, e.Name, uint8(e.Kind)))
		}
	}

	start := *pos
	end := int64(page.Count()) + 2
	for *pos < end {
		var e DirEntry
		switch *pos {
		case 0:
			e = DirEntry{Name: ".", ID: dirID, Kind: models.KindDirectory}
		case 1:
			e = DirEntry{Name: "..", ID: parentID, Kind: models.KindDirectory}
		default:
			r := page.Entries[*pos-2]
			e = DirEntry{Name: r.Name, ID: r.ID, Kind: r.Kind}
		}
		e.Pos = *pos
		if !emit(e) {
			break
		}
		*pos++
	}

	emitted := 0
	if *pos > start {
		emitted = int(*pos - start)
	}
	metrics.RecordDirEntries(emitted)
	s.log.Debug("iterate",
		zap.Uint64("dir", dirID),
		zap.Int64("from", start),
		zap.Int("emitted", emitted),
		zap.Int("remote", page.Count()),
	)
	return emitted, nil
}

// ReadDir collects the whole directory, synthetic entries included.
func (s *Session) ReadDir(ctx context.Context, dirID, parentID uint64) ([]DirEntry, error) {
	var (
		pos     int64
		entries []DirEntry
	)
	for {
		n, err := s.Iterate(ctx, dirID, parentID, &pos, func(e DirEntry) bool {
			entries = append(entries, e)
			return true
		})
		if err != nil {
			return entries, err
		}
		if n == 0 {
			return entries, nil
		}
	}
}
