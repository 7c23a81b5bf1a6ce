// Package rand generates the short ids correlating push store listen
// frames with the events sent for them.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// alphabet keeps ids safe to embed in JSON and URLs without escaping.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

type source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var ids = newSource()

func newSource() *source {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic("unreachable")
	}
	//nolint:gosec // ids only need to be unique per connection
	return &source{rng: rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	))}
}

// fill writes one alphabet character per byte of buf, drawing eight
// characters from each random word.
func (s *source) fill(buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var word uint64
	for i := range buf {
		if i%8 == 0 {
			word = s.rng.Uint64()
		}
		buf[i] = alphabet[int(byte(word))%len(alphabet)]
		word >>= 8
	}
}

// NewRequestID returns an id of length alphanumeric characters. The
// distribution is slightly biased towards the start of the alphabet.
func NewRequestID(length int) string {
	if length <= 0 {
		return ""
	}
	buf := make([]byte, length)
	ids.fill(buf)
	return string(buf)
}
