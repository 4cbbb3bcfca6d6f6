package memory

import (
	"testing"

	"github.com/fruitsalade/networkfs/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, New())
}
