package push

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval and waiting so scheduling logic, backoff,
// and pacing are deterministic in tests.
type Clock interface {
	Now() time.Time
	// After behaves like time.After: it delivers the then-current time once
	// d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// RealClock uses the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
