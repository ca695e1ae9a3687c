// Package prep turns tokenized parallel-corpus examples into padded,
// batch-major minibatches for a sequence-to-sequence trainer, together with
// the sparse embedding-update lists and the truncated-softmax sample set the
// training step needs.
//
// An Engine owns every buffer it hands out. A Batch returned by Next is a view
// into those buffers and is only valid until the following call to Next.
package prep

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/Noofbiz/seqbatch/corpus"
)

// Pad marks cells past the end of a sentence. It is never a valid token id.
const Pad int32 = -1

// BlockSource hands out consecutive groups of 4-line examples and reports
// when it wrapped to the start of the corpus. corpus.Cursor implements it.
type BlockSource interface {
	NextBlock(n int) (lines []string, sameEpoch bool, err error)
}

// CharReader is the character-level sub-reader that mirrors the token
// corpus. The engine only drives its lifecycle.
type CharReader interface {
	ReadMinibatch() error
	Reset() error
}

// State is the epoch state after the most recent batch.
type State int

const (
	// InEpoch means the last batch was filled from the current pass.
	InEpoch State = iota

	// EpochBoundary means the last batch ended a pass over the corpus and the
	// next one starts from the first example.
	EpochBoundary
)

func (s State) String() string {
	switch s {
	case InEpoch:
		return "in-epoch"
	case EpochBoundary:
		return "epoch-boundary"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Batch is one preprocessed minibatch.
//
// Matrices are batch-major: cell (i, j), example i and position j, lives at
// index j*Size+i, so all examples at one position are contiguous. Viewed as a
// row-major matrix that is [Len][Size].
type Batch struct {
	// Size is the minibatch capacity B.
	Size int

	// Examples is the number of rows loaded from the corpus. It is below Size
	// only when the corpus ran out mid-batch; the remaining rows are all Pad.
	Examples int

	SourceLen int
	TargetLen int

	SourceInput  []int32
	SourceOutput []int32
	TargetInput  []int32

	// TargetOutput holds sample rows instead of vocabulary ids for ids at or
	// above the shortlist when truncated softmax is on.
	TargetOutput []int32

	// Info holds the true source length of every example, then the number of
	// padding cells of every example.
	Info []int32

	// SourceWgrad and TargetWgrad hold the distinct input ids of each side in
	// their first SourceWgradLen / TargetWgradLen cells and Pad afterwards.
	SourceWgrad    []int32
	TargetWgrad    []int32
	SourceWgradLen int
	TargetWgradLen int

	// Sampled is the truncated-softmax candidate list, nil when disabled. Its
	// first UniqueSampled entries are ids the batch referenced.
	Sampled       []int32
	UniqueSampled int

	// SameEpoch is false for the batch that ends a pass over the corpus.
	SameEpoch bool

	// Words counts non-Pad source-input and target-output cells.
	Words int
}

// At returns cell (i, j) of a batch-major matrix with the given batch size.
func At(m []int32, size, i, j int) int32 {
	return m[j*size+i]
}

// Engine produces minibatches. It is not safe for concurrent use.
type Engine struct {
	cfg   Config
	src   BlockSource
	chars CharReader
	rng   *rand.Rand

	// per-example staging, example i starts at i*MaxSentenceLength
	tmpSrcIn, tmpSrcOut, tmpTgtIn, tmpTgtOut []int32
	lenSrcIn, lenSrcOut, lenTgtIn, lenTgtOut []int

	srcIn, srcOut, tgtIn, tgtOut []int32
	info                         []int32
	srcWgrad, tgtWgrad           []int32

	srcCompactor *Compactor
	tgtCompactor *Compactor
	sampler      *Sampler

	batch   Batch
	state   State
	epoch   int
	batches int

	// err poisons the engine after the first fatal error.
	err error
}

// Option configures an Engine.
type Option func(*Engine)

// WithCharReader attaches the character-level sub-reader. It is required
// when Config.CharMode is set.
func WithCharReader(r CharReader) Option {
	return func(e *Engine) { e.chars = r }
}

// WithRand sets the random source of the truncated-softmax sampler.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// New validates cfg and allocates every buffer the engine will use.
func New(cfg Config, src BlockSource, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if src == nil {
		return nil, fmt.Errorf("block source cannot be nil")
	}

	e := &Engine{cfg: cfg, src: src}
	for _, opt := range opts {
		opt(e)
	}
	if cfg.CharMode && e.chars == nil {
		return nil, fmt.Errorf("char_mode is set but no character reader was given")
	}
	if e.rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		e.rng = rand.New(rand.NewSource(seed))
	}

	b, maxLen := cfg.MinibatchSize, cfg.MaxSentenceLength
	capacity := b * maxLen
	newBuf := func() []int32 { return make([]int32, capacity) }

	e.tmpSrcIn, e.tmpSrcOut, e.tmpTgtIn, e.tmpTgtOut = newBuf(), newBuf(), newBuf(), newBuf()
	e.lenSrcIn, e.lenSrcOut = make([]int, b), make([]int, b)
	e.lenTgtIn, e.lenTgtOut = make([]int, b), make([]int, b)
	e.srcIn, e.srcOut, e.tgtIn, e.tgtOut = newBuf(), newBuf(), newBuf(), newBuf()
	e.info = make([]int32, 2*b)
	e.srcWgrad, e.tgtWgrad = newBuf(), newBuf()

	e.srcCompactor = NewCompactor(cfg.SourceVocabSize)
	e.tgtCompactor = NewCompactor(cfg.TargetVocabSize)
	if cfg.TruncatedSoftmax {
		s, err := NewSampler(cfg.TargetVocabSize, cfg.ShortlistSize, cfg.SampledSize, e.rng)
		if err != nil {
			return nil, fmt.Errorf("failed to create sampler: %w", err)
		}
		e.sampler = s
	}
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// State returns the epoch state after the most recent batch.
func (e *Engine) State() State { return e.state }

// Restart marks the next batch as the start of a pass. Call it after
// rewinding the source; epoch and batch counters are kept.
func (e *Engine) Restart() { e.state = InEpoch }

// Epoch returns the number of completed passes over the corpus.
func (e *Engine) Epoch() int { return e.epoch }

// Batches returns the number of batches produced so far.
func (e *Engine) Batches() int { return e.batches }

// Err returns the fatal error that stopped the engine, if any.
func (e *Engine) Err() error { return e.err }

// Next reads, lays out and preprocesses the next minibatch. After a fatal
// error every later call returns the same error.
func (e *Engine) Next() (*Batch, error) {
	if e.err != nil {
		return nil, e.err
	}
	b, err := e.next()
	if err != nil {
		e.err = err
		return nil, err
	}
	return b, nil
}

func (e *Engine) next() (*Batch, error) {
	if e.chars != nil {
		if err := e.chars.ReadMinibatch(); err != nil {
			return nil, fmt.Errorf("character reader: %w", err)
		}
	}

	lines, sameEpoch, err := e.src.NextBlock(e.cfg.MinibatchSize)
	if err != nil {
		return nil, wrapSourceErr(err)
	}

	if !sameEpoch && e.chars != nil {
		if err := e.chars.Reset(); err != nil {
			return nil, fmt.Errorf("character reader reset: %w", err)
		}
	}

	examples, err := e.load(lines)
	if err != nil {
		return nil, err
	}
	srcLen, tgtLen, err := e.layout(examples)
	if err != nil {
		return nil, err
	}

	b := e.cfg.MinibatchSize
	srcCells, tgtCells := b*srcLen, b*tgtLen

	kSrc, err := e.srcCompactor.Compact(e.srcIn[:srcCells], e.srcWgrad)
	if err != nil {
		return nil, err
	}
	kTgt, err := e.tgtCompactor.Compact(e.tgtIn[:tgtCells], e.tgtWgrad)
	if err != nil {
		return nil, err
	}

	e.batch = Batch{
		Size:           b,
		Examples:       examples,
		SourceLen:      srcLen,
		TargetLen:      tgtLen,
		SourceInput:    e.srcIn[:srcCells],
		SourceOutput:   e.srcOut[:srcCells],
		TargetInput:    e.tgtIn[:tgtCells],
		TargetOutput:   e.tgtOut[:tgtCells],
		Info:           e.info,
		SourceWgrad:    e.srcWgrad[:srcCells],
		TargetWgrad:    e.tgtWgrad[:tgtCells],
		SourceWgradLen: kSrc,
		TargetWgradLen: kTgt,
		SameEpoch:      sameEpoch,
		Words:          countWords(e.srcIn[:srcCells]) + countWords(e.tgtOut[:tgtCells]),
	}

	if e.sampler != nil {
		if err := e.sampler.Sample(e.batch.TargetOutput); err != nil {
			return nil, err
		}
		e.batch.Sampled = e.sampler.Samples()
		e.batch.UniqueSampled = e.sampler.Unique()
	}

	e.batches++
	if sameEpoch {
		e.state = InEpoch
	} else {
		e.state = EpochBoundary
		e.epoch++
	}
	return &e.batch, nil
}

func wrapSourceErr(err error) error {
	if _, ok := KindOf(err); ok {
		return err
	}
	if isFormatErr(err) {
		return &FatalError{Kind: KindCorpusFormat, Op: "prep.Next", Err: err}
	}
	return fmt.Errorf("failed to read block: %w", err)
}

func countWords(m []int32) int {
	n := 0
	for _, v := range m {
		if v != Pad {
			n++
		}
	}
	return n
}

// Sampler returns the truncated-softmax sampler, nil when disabled.
func (e *Engine) Sampler() *Sampler { return e.sampler }

// ensure corpus.Cursor keeps satisfying BlockSource
var _ BlockSource = (*corpus.Cursor)(nil)
