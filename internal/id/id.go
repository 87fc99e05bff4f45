// Package id mints the module's identifiers: vault keys and journal record
// IDs.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// The entropy source is a PRNG seeded from crypto/rand, wrapped in
	// ulid.Monotonic so IDs minted within one millisecond still sort in
	// generation order.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New mints one ULID string. ULIDs sort lexicographically by generation time,
// which keeps vault iteration, the action log and the journal's primary key
// in creation order.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		// ulid.New only fails on a broken entropy reader or a clock before
		// the epoch.
		panic(err)
	}
	return id.String()
}
