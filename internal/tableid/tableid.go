// Package tableid generates identifiers for tables and hands.
package tableid

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	entropyMu sync.Mutex
)

// New returns a new ULID string, lowercased for wire friendliness.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// NewHandID returns an identifier for a single hand at a table.
func NewHandID(tableID string) string {
	return tableID + "-" + New()
}
