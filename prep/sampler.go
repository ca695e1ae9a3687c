package prep

import (
	"fmt"
	"math/rand"
)

// Sampler builds the truncated-softmax candidate set for a batch and rewrites
// target-output ids into rows of that set.
//
// The candidate set has exactly size entries: every distinct id >= shortlist
// used by the batch (in scan order), then a uniform sample without replacement
// of the remaining ids in [shortlist, vocab).
type Sampler struct {
	vocab     int
	shortlist int
	size      int
	rng       *rand.Rand

	seen []bool

	// rows maps a vocabulary id to its row in samples, -1 when absent.
	rows []int32

	samples []int32
	unique  int
	filled  int
}

// NewSampler allocates a sampler. rng is the only source of randomness; pass
// a seeded generator for reproducible runs.
func NewSampler(vocab, shortlist, size int, rng *rand.Rand) (*Sampler, error) {
	if rng == nil {
		return nil, fmt.Errorf("sampler needs a random source")
	}
	if shortlist < 0 || shortlist >= vocab {
		return nil, fmt.Errorf("shortlist %d outside [0, %d)", shortlist, vocab)
	}
	if size <= 0 || size > vocab-shortlist {
		return nil, fmt.Errorf("sample size %d outside [1, %d]", size, vocab-shortlist)
	}
	s := &Sampler{
		vocab:     vocab,
		shortlist: shortlist,
		size:      size,
		rng:       rng,
		seen:      make([]bool, vocab),
		rows:      make([]int32, vocab),
		samples:   make([]int32, size),
	}
	for i := range s.rows {
		s.rows[i] = Pad
	}
	return s, nil
}

// Samples returns the candidate list of the last Sample call. The slice is
// owned by the sampler.
func (s *Sampler) Samples() []int32 { return s.samples[:s.filled] }

// Unique returns how many leading entries of Samples were ids referenced by
// the batch.
func (s *Sampler) Unique() int { return s.unique }

// Size returns the configured number of sample rows.
func (s *Sampler) Size() int { return s.size }

// Shortlist returns the first id subject to sampling.
func (s *Sampler) Shortlist() int { return s.shortlist }

// Row returns the sample row of a vocabulary id.
func (s *Sampler) Row(id int32) (int32, bool) {
	if id < 0 || int(id) >= s.vocab {
		return 0, false
	}
	r := s.rows[id]
	return r, r >= 0
}

// Sample builds the candidate set for target and rewrites, in place, every
// id >= shortlist to its sample row. Ids below the shortlist and Pad are left
// untouched.
func (s *Sampler) Sample(target []int32) error {
	const op = "prep.Sample"

	for _, id := range s.samples[:s.filled] {
		s.rows[id] = Pad
	}
	s.filled = 0
	s.unique = 0
	clear(s.seen)

	shortlist := int32(s.shortlist)

	// ids the batch uses must be representable
	n := 0
	for i, v := range target {
		if v < shortlist {
			if v < Pad {
				return fatalf(KindCorpusFormat, op, "id %d at cell %d is negative", v, i)
			}
			continue
		}
		if int(v) >= s.vocab {
			return fatalf(KindCorpusFormat, op, "id %d at cell %d outside target vocabulary [0, %d)", v, i, s.vocab)
		}
		if s.seen[v] {
			continue
		}
		s.seen[v] = true
		if n < s.size {
			s.samples[n] = v
		}
		n++
	}
	if n > s.size {
		return fatalf(KindSamplingCapacity, op, "%d distinct ids above shortlist %d, only %d sample rows",
			n, s.shortlist, s.size)
	}
	s.unique = n

	// reservoir over the ids the batch did not use
	k := s.size - n
	t := 0
	for id := s.shortlist; id < s.vocab; id++ {
		if s.seen[id] {
			continue
		}
		if t < k {
			s.samples[n+t] = int32(id)
		} else if r := int(float64(t+1) * s.rng.Float64()); r < k {
			// id is candidate t+1 (t counts from 0), so it must stay with
			// probability k/(t+1); scaling by t would always keep candidate k+1.
			s.samples[n+r] = int32(id)
		}
		t++
	}
	if t < k {
		return fatalf(KindInvariant, op, "only %d ids eligible for %d reservoir slots", t, k)
	}
	s.filled = s.size

	for row, id := range s.samples {
		s.rows[id] = int32(row)
	}

	for i, v := range target {
		if v < shortlist {
			continue
		}
		row := s.rows[v]
		if row < 0 {
			return fatalf(KindInvariant, op, "id %d at cell %d has no sample row", v, i)
		}
		target[i] = row
	}
	return nil
}
