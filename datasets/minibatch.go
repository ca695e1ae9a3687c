package datasets

import (
	"fmt"
	"log"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/seqbatch/corpus"
	"github.com/Noofbiz/seqbatch/prep"
)

// BatchSpec is returned as the spec of every Yield.
type BatchSpec struct {
	// Batch is the 1-based number of the batch since the dataset was created.
	Batch int

	// Epoch is the number of completed passes over the corpus, including the
	// one this batch may have just completed.
	Epoch int

	SameEpoch      bool
	Examples       int
	SourceLen      int
	TargetLen      int
	SourceWgradLen int
	TargetWgradLen int
	UniqueSampled  int
	Words          int
}

// MinibatchDataset yields preprocessed minibatches from a token corpus.
type MinibatchDataset struct {
	cfg    prep.Config
	cursor *corpus.Cursor
	chars  *CharMirror
	engine *prep.Engine
}

// NewMinibatchDataset opens the corpus at path and builds an engine over it.
// With cfg.CharMode set, a CharMirror over cfg.CharFile is attached.
func NewMinibatchDataset(path string, cfg prep.Config, opts ...prep.Option) (*MinibatchDataset, error) {
	cursor, err := corpus.Open(path)
	if err != nil {
		return nil, err
	}
	d := &MinibatchDataset{cfg: cfg, cursor: cursor}

	if cfg.CharMode {
		if cfg.CharFile == "" {
			cursor.Close()
			return nil, fmt.Errorf("char_mode requires char_file")
		}
		d.chars, err = OpenCharMirror(cfg.CharFile, cfg.MinibatchSize)
		if err != nil {
			cursor.Close()
			return nil, err
		}
		opts = append([]prep.Option{prep.WithCharReader(d.chars)}, opts...)
	}

	d.engine, err = prep.New(cfg, cursor, opts...)
	if err != nil {
		d.Close()
		return nil, err
	}

	stats := cursor.Stats()
	log.Printf("[Engine] corpus %s: %d examples, %d words, %d target words",
		path, cursor.Examples(), stats.Words, stats.TargetWords)
	return d, nil
}

// Name returns the name of the dataset
func (d *MinibatchDataset) Name() string {
	return "MinibatchDataset"
}

// Engine exposes the underlying engine, e.g. for its epoch counters.
func (d *MinibatchDataset) Engine() *prep.Engine {
	return d.engine
}

// Cursor exposes the corpus cursor.
func (d *MinibatchDataset) Cursor() *corpus.Cursor {
	return d.cursor
}

// Next returns the next engine batch. The batch is only valid until the
// following call; use MakeMinibatchFlat to keep it.
func (d *MinibatchDataset) Next() (*prep.Batch, error) {
	b, err := d.engine.Next()
	if err != nil {
		return nil, err
	}
	if !b.SameEpoch {
		log.Printf("[Epoch] completed epoch %d after %d batches", d.engine.Epoch(), d.engine.Batches())
	}
	return b, nil
}

// Yield returns the next batch of data for the gomlx Dataset interface. It
// never returns io.EOF: the corpus wraps around at the end of every epoch.
func (d *MinibatchDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	b, err := d.Next()
	if err != nil {
		return nil, nil, nil, err
	}
	flat, err := MakeMinibatchFlat(b)
	if err != nil {
		return nil, nil, nil, err
	}
	inputs, labels, err = flat.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return d.spec(b), inputs, labels, nil
}

func (d *MinibatchDataset) spec(b *prep.Batch) *BatchSpec {
	return &BatchSpec{
		Batch:          d.engine.Batches(),
		Epoch:          d.engine.Epoch(),
		SameEpoch:      b.SameEpoch,
		Examples:       b.Examples,
		SourceLen:      b.SourceLen,
		TargetLen:      b.TargetLen,
		SourceWgradLen: b.SourceWgradLen,
		TargetWgradLen: b.TargetWgradLen,
		UniqueSampled:  b.UniqueSampled,
		Words:          b.Words,
	}
}

// Reset moves the corpus (and the character file) back to the first example
// and puts the engine back in the InEpoch state. Epoch and batch counters are
// kept.
func (d *MinibatchDataset) Reset() error {
	if err := d.engine.Err(); err != nil {
		return fmt.Errorf("dataset stopped by a fatal error: %w", err)
	}
	if err := d.cursor.Rewind(); err != nil {
		return err
	}
	if d.chars != nil {
		if err := d.chars.Rewind(); err != nil {
			return err
		}
	}
	d.engine.Restart()
	return nil
}

// Close releases the corpus files.
func (d *MinibatchDataset) Close() error {
	err := d.cursor.Close()
	if d.chars != nil {
		if cerr := d.chars.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var _ Dataset = (*MinibatchDataset)(nil)
