package journal

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so engine logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Use in tests.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// pathIDNamespace seeds DerivedID. Fixed so the same path always maps
// to the same UUID across processes and rebuilds.
var pathIDNamespace = uuid.MustParse("7b1c8a44-9f02-4c3d-8d60-2f5a3e9b1d77")

// DerivedID returns a stable UUID for a tree path. Rows synthesized for
// files without an explicit id keep the same identity on every rebuild.
func DerivedID(path string) string {
	return uuid.NewSHA1(pathIDNamespace, []byte(path)).String()
}

// SequenceIDGenerator hands out pre-seeded IDs in order. Use in tests.
type SequenceIDGenerator struct {
	IDs []string
	n   int
}

func (g *SequenceIDGenerator) New() string {
	if g.n >= len(g.IDs) {
		return uuid.New().String()
	}

	id := g.IDs[g.n]
	g.n++

	return id
}
