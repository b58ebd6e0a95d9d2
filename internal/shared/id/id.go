// Package id provides ULID generation for transaction traces and bridge
// sessions.
//
// ULIDs are lexicographically sortable, so trace ids line up with time in
// log output without a separate timestamp, and prefixes keep the two id
// spaces visually distinct (txn_*, brg_*).
package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces ULIDs with monotonic ordering within a millisecond.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewGenerator creates a ULID generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate returns a new ULID string.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

var defaultGen = NewGenerator()

// NewTraceID returns a transaction trace id ("txn_" prefix).
func NewTraceID() string {
	return "txn_" + defaultGen.Generate()
}

// NewSessionID returns a bridge session id ("brg_" prefix).
func NewSessionID() string {
	return "brg_" + defaultGen.Generate()
}

// IsValid reports whether s is a well-formed ULID.
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
