// Package monte runs Monte Carlo checks of the truncated-softmax sampler: it
// repeats the reservoir draw many times over a fixed batch and measures how
// evenly the free sample rows are spread over the eligible vocabulary.
package monte

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/Noofbiz/seqbatch/prep"
)

// Result holds the merged tallies of a uniformity run.
type Result struct {
	// Draws is the total number of Sample calls across all simulations.
	Draws int

	// Counts[id] is how many times id was drawn by the reservoir. Ids below
	// the shortlist and ids the target referenced are never counted.
	Counts []int64

	// Candidates are the ids eligible for reservoir draws.
	Candidates []int32

	// Expected is the count every candidate would have under a uniform draw.
	Expected float64

	// MaxDeviation is max |count-expected|/expected over the candidates.
	MaxDeviation float64

	// ChiSquare is sum (count-expected)^2/expected over the candidates.
	ChiSquare float64
}

// Uniform reports whether every candidate count is within tol (relative) of
// the expected count.
func (r *Result) Uniform(tol float64) bool {
	return r.MaxDeviation <= tol
}

// Monte draws sampler batches in parallel.
type Monte struct {
	VocabSize     int
	ShortlistSize int
	SampledSize   int

	// Workers caps the number of goroutines. Zero means runtime.NumCPU().
	Workers int

	// Tolerance is the relative deviation Check accepts.
	Tolerance float64

	rng *rand.Rand
}

// NewMonte creates a Monte for a sampler with the given sizes. The sizes are
// validated the way prep.NewSampler validates them.
func NewMonte(vocab, shortlist, sampled int) (*Monte, error) {
	if _, err := prep.NewSampler(vocab, shortlist, sampled, rand.New(rand.NewSource(1))); err != nil {
		return nil, err
	}
	return &Monte{
		VocabSize:     vocab,
		ShortlistSize: shortlist,
		SampledSize:   sampled,
		Tolerance:     0.1,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// SetSeed makes the simulation seeds deterministic.
func (m *Monte) SetSeed(seed int64) {
	if m == nil {
		return
	}
	m.rng = rand.New(rand.NewSource(seed))
}

// SetWorkers sets the goroutine cap, values <= 0 mean runtime.NumCPU().
func (m *Monte) SetWorkers(n int) {
	if m == nil {
		return
	}
	m.Workers = n
}

// LoadConfig reads a JSON file of the form
//
//	{
//	  "vocab_size": 32000,
//	  "shortlist_size": 2000,
//	  "sampled_size": 512,
//	  "workers": 4,
//	  "tolerance": 0.1,
//	  "seed": 7
//	}
//
// Only the fields present in the file are applied. Sizes are revalidated.
func (m *Monte) LoadConfig(path string) error {
	if m == nil {
		return fmt.Errorf("Monte is nil")
	}
	if path == "" {
		return fmt.Errorf("empty path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read monte config: %w", err)
	}
	var raw struct {
		VocabSize     *int     `json:"vocab_size"`
		ShortlistSize *int     `json:"shortlist_size"`
		SampledSize   *int     `json:"sampled_size"`
		Workers       *int     `json:"workers"`
		Tolerance     *float64 `json:"tolerance"`
		Seed          *int64   `json:"seed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal monte config: %w", err)
	}

	vocab, shortlist, sampled := m.VocabSize, m.ShortlistSize, m.SampledSize
	if raw.VocabSize != nil {
		vocab = *raw.VocabSize
	}
	if raw.ShortlistSize != nil {
		shortlist = *raw.ShortlistSize
	}
	if raw.SampledSize != nil {
		sampled = *raw.SampledSize
	}
	if _, err := prep.NewSampler(vocab, shortlist, sampled, rand.New(rand.NewSource(1))); err != nil {
		return fmt.Errorf("monte config %s: %w", path, err)
	}
	m.VocabSize, m.ShortlistSize, m.SampledSize = vocab, shortlist, sampled

	if raw.Workers != nil {
		m.SetWorkers(*raw.Workers)
	}
	if raw.Tolerance != nil {
		m.Tolerance = *raw.Tolerance
	}
	if raw.Seed != nil {
		m.SetSeed(*raw.Seed)
	}
	return nil
}

// Simulate runs numSims independent simulations of drawsPerSim Sample calls
// each over a copy of target, and merges the reservoir tallies.
//
// Every simulation gets its own sampler and its own RNG seeded from m's RNG,
// so the result only depends on m's seed, not on scheduling.
func (m *Monte) Simulate(target []int32, numSims, drawsPerSim int) (*Result, error) {
	if m == nil {
		return nil, errors.New("Monte object is nil")
	}
	if numSims <= 0 {
		return nil, fmt.Errorf("numSims must be > 0")
	}
	if drawsPerSim <= 0 {
		return nil, fmt.Errorf("drawsPerSim must be > 0")
	}

	candidates, err := m.candidates(target)
	if err != nil {
		return nil, err
	}
	// rows left after the ids the target references
	free := m.SampledSize - (m.VocabSize - m.ShortlistSize - len(candidates))

	// Precompute independent seeds using the Monte RNG (serial access).
	seeds := make([]int64, numSims)
	for i := range seeds {
		seeds[i] = m.rng.Int63()
	}

	workerCount := m.Workers
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if workerCount > numSims {
		workerCount = numSims
	}

	counts := make([][]int64, numSims)
	errs := make([]error, numSims)
	jobs := make(chan int, numSims)
	var wg sync.WaitGroup
	wg.Add(workerCount)

	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for sim := range jobs {
				counts[sim], errs[sim] = m.simulate(target, drawsPerSim, seeds[sim])
			}
		}()
	}
	for sim := 0; sim < numSims; sim++ {
		jobs <- sim
	}
	close(jobs)
	wg.Wait()

	res := &Result{
		Draws:      numSims * drawsPerSim,
		Counts:     make([]int64, m.VocabSize),
		Candidates: candidates,
	}
	for sim := range counts {
		if errs[sim] != nil {
			return nil, fmt.Errorf("simulation %d: %w", sim, errs[sim])
		}
		for id, n := range counts[sim] {
			res.Counts[id] += n
		}
	}
	if len(candidates) == 0 {
		return res, nil
	}

	res.Expected = float64(res.Draws) * float64(free) / float64(len(candidates))
	if res.Expected == 0 {
		return res, nil
	}
	for _, id := range candidates {
		diff := float64(res.Counts[id]) - res.Expected
		res.ChiSquare += diff * diff / res.Expected
		res.MaxDeviation = math.Max(res.MaxDeviation, math.Abs(diff)/res.Expected)
	}
	return res, nil
}

// Check runs Simulate and returns an error when the draw is not uniform
// within m.Tolerance.
func (m *Monte) Check(target []int32, numSims, drawsPerSim int) (*Result, error) {
	res, err := m.Simulate(target, numSims, drawsPerSim)
	if err != nil {
		return nil, err
	}
	if !res.Uniform(m.Tolerance) {
		return res, fmt.Errorf("reservoir draw is not uniform: max deviation %.4f exceeds %.4f (chi-square %.1f over %d ids)",
			res.MaxDeviation, m.Tolerance, res.ChiSquare, len(res.Candidates))
	}
	return res, nil
}

// simulate tallies the reservoir part of draws Sample calls.
func (m *Monte) simulate(target []int32, draws int, seed int64) ([]int64, error) {
	s, err := prep.NewSampler(m.VocabSize, m.ShortlistSize, m.SampledSize, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}
	counts := make([]int64, m.VocabSize)
	buf := make([]int32, len(target))
	for d := 0; d < draws; d++ {
		// Sample rewrites its input
		copy(buf, target)
		if err := s.Sample(buf); err != nil {
			return nil, err
		}
		for _, id := range s.Samples()[s.Unique():] {
			counts[id]++
		}
	}
	return counts, nil
}

// candidates lists the ids at or above the shortlist that target does not
// reference, in increasing order.
func (m *Monte) candidates(target []int32) ([]int32, error) {
	used := make([]bool, m.VocabSize)
	for _, id := range target {
		if id == prep.Pad {
			continue
		}
		if id < prep.Pad || int(id) >= m.VocabSize {
			return nil, fmt.Errorf("target id %d outside [0, %d)", id, m.VocabSize)
		}
		used[id] = true
	}
	var out []int32
	for id := m.ShortlistSize; id < m.VocabSize; id++ {
		if !used[id] {
			out = append(out, int32(id))
		}
	}
	return out, nil
}
