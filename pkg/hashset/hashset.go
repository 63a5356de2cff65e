// Package hashset implements a chained open-hash set of small integer
// identifiers (task pids, event ids, cpu ids). It backs every ID filter
// and the per-stream task registry.
package hashset

import "sort"

// knuth is the golden-ratio multiplicative hashing constant.
const knuth uint32 = 2654435761

// maxBits is the widest usable bucket index; New treats anything
// outside (0, 31] as a request for the full, unmasked hash.
const maxBits = 31

// Set is a hash set of integer ids with a fixed, power-of-two bucket
// count. The zero value is not usable; call New.
type Set struct {
	buckets map[uint32][]int
	nbits   uint8
	count   int
}

// New returns an empty set hashing ids into 2^nbits buckets. nbits of 0
// or greater than 31 selects the full 32-bit hash, used for the
// unconstrained general-purpose set.
func New(nbits uint8) *Set {
	if nbits == 0 || nbits > maxBits {
		nbits = 32
	}
	return &Set{
		buckets: make(map[uint32][]int),
		nbits:   nbits,
	}
}

func (s *Set) hash(id int) uint32 {
	h := uint32(id) * knuth
	if s.nbits >= 32 {
		return h
	}
	return h >> (32 - s.nbits)
}

// Find reports whether id is in the set.
func (s *Set) Find(id int) bool {
	for _, v := range s.buckets[s.hash(id)] {
		if v == id {
			return true
		}
	}
	return false
}

// Add inserts id. Adding an id that is already present is a no-op.
func (s *Set) Add(id int) {
	key := s.hash(id)
	for _, v := range s.buckets[key] {
		if v == id {
			return
		}
	}
	s.buckets[key] = append(s.buckets[key], id)
	s.count++
}

// Remove deletes id if present.
func (s *Set) Remove(id int) {
	key := s.hash(id)
	chain := s.buckets[key]
	for i, v := range chain {
		if v == id {
			chain[i] = chain[len(chain)-1]
			s.buckets[key] = chain[:len(chain)-1]
			s.count--
			return
		}
	}
}

// Clear removes every id.
func (s *Set) Clear() {
	s.buckets = make(map[uint32][]int)
	s.count = 0
}

// Count returns the number of ids in the set.
func (s *Set) Count() int {
	return s.count
}

// Empty reports whether the set holds no ids.
func (s *Set) Empty() bool {
	return s.count == 0
}

// IDs returns every id in the set, sorted ascending. Callers rely on
// the deterministic order for stable UI lists and reproducible filter
// documents.
func (s *Set) IDs() []int {
	ids := make([]int, 0, s.count)
	for _, chain := range s.buckets {
		ids = append(ids, chain...)
	}
	sort.Ints(ids)
	return ids
}
