// Package rng draws bounded values from execution-scoped entropy.
//
// Entropy is not secret: every replayer of the same journal observes the same
// bytes, which is what makes registration outcomes reproducible.
package rng

import "encoding/binary"

// Source yields entropy for the execution currently being processed.
type Source interface {
	Read(n int) []byte
}

type Provider struct {
	src Source
}

func New(src Source) Provider { return Provider{src: src} }

// Coinflip returns 0 or 1 from the first entropy byte.
func (p Provider) Coinflip() uint8 {
	b := p.src.Read(1)
	return b[0] % 2
}

// Bounded interprets the first two entropy bytes as a big-endian uint16 taken
// mod max. Results below min fall back to max/2 instead of being redrawn.
func (p Provider) Bounded(min, max uint16) uint16 {
	if max == 0 {
		panic("rng: Bounded with zero max")
	}
	b := p.src.Read(2)
	v := binary.BigEndian.Uint16(b[:2]) % max
	if v < min {
		return max / 2
	}
	return v
}

// HashSource derives bytes from (seed, cycle, seq, draw) with the splitmix64
// finalizer. Begin must be called before each message is processed.
type HashSource struct {
	seed  int64
	cycle uint64
	seq   uint64
	draw  uint64
}

func NewHashSource(seed int64) *HashSource { return &HashSource{seed: seed} }

func (s *HashSource) Seed() int64 { return s.seed }

// Begin scopes subsequent reads to one message of one cycle.
func (s *HashSource) Begin(cycle, seq uint64) {
	s.cycle = cycle
	s.seq = seq
	s.draw = 0
}

func (s *HashSource) Read(n int) []byte {
	out := make([]byte, 0, n+8)
	var block [8]byte
	for i := uint64(0); len(out) < n; i++ {
		v := uint64(s.seed) ^
			(s.cycle * 0x9e3779b97f4a7c15) ^
			(s.seq * 0xc2b2ae3d27d4eb4f) ^
			(s.draw * 0xbf58476d1ce4e5b9) ^
			(i * 0x94d049bb133111eb)
		binary.BigEndian.PutUint64(block[:], mix64(v))
		out = append(out, block[:]...)
	}
	s.draw++
	return out[:n]
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Script replays fixed draws in order; once exhausted it yields zero bytes.
type Script struct {
	draws [][]byte
	next  int
}

func NewScript(draws ...[]byte) *Script { return &Script{draws: draws} }

func (s *Script) Read(n int) []byte {
	out := make([]byte, n)
	if s.next < len(s.draws) {
		copy(out, s.draws[s.next])
		s.next++
	}
	return out
}

// Remaining reports how many scripted draws have not been consumed.
func (s *Script) Remaining() int { return len(s.draws) - s.next }

// U16 encodes v as a two-byte big-endian draw, for use with Script.
func U16(v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return b[:]
}
