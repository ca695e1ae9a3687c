package prep

import (
	"errors"
	"fmt"
)

// Config holds the sizes the engine allocates its buffers from. All buffers
// are sized once in New; nothing is resized afterwards.
type Config struct {
	// MinibatchSize is B, the number of examples per batch.
	MinibatchSize int `json:"minibatch_size"`

	// MaxSentenceLength caps the padded length L of either side.
	MaxSentenceLength int `json:"max_sentence_length"`

	SourceVocabSize int `json:"source_vocab_size"`
	TargetVocabSize int `json:"target_vocab_size"`

	// TruncatedSoftmax enables the sampled output vocabulary.
	TruncatedSoftmax bool `json:"truncated_softmax"`

	// ShortlistSize is the number of low ids always scored exactly.
	ShortlistSize int `json:"shortlist_size"`

	// SampledSize is the number of sample rows for ids >= ShortlistSize.
	SampledSize int `json:"sampled_size"`

	// CharMode requires a character sub-reader (see WithCharReader) reading
	// CharFile in lockstep with the token corpus.
	CharMode bool   `json:"char_mode"`
	CharFile string `json:"char_file"`

	// Seed for the reservoir sampler. Zero means time-based. Ignored when
	// WithRand is given.
	Seed int64 `json:"seed"`
}

// Validate checks that the configuration describes buffers the engine can
// allocate and a sampler that can always be filled.
func (c Config) Validate() error {
	if c.MinibatchSize <= 0 {
		return fmt.Errorf("minibatch_size must be > 0, got %d", c.MinibatchSize)
	}
	if c.MaxSentenceLength <= 0 {
		return fmt.Errorf("max_sentence_length must be > 0, got %d", c.MaxSentenceLength)
	}
	if c.SourceVocabSize <= 0 {
		return fmt.Errorf("source_vocab_size must be > 0, got %d", c.SourceVocabSize)
	}
	if c.TargetVocabSize <= 0 {
		return fmt.Errorf("target_vocab_size must be > 0, got %d", c.TargetVocabSize)
	}
	if c.TruncatedSoftmax {
		if c.ShortlistSize < 0 || c.ShortlistSize >= c.TargetVocabSize {
			return fmt.Errorf("shortlist_size must be in [0, %d), got %d", c.TargetVocabSize, c.ShortlistSize)
		}
		if c.SampledSize <= 0 {
			return fmt.Errorf("sampled_size must be > 0, got %d", c.SampledSize)
		}
		if c.SampledSize > c.TargetVocabSize-c.ShortlistSize {
			return fmt.Errorf("sampled_size %d exceeds the %d ids above the shortlist",
				c.SampledSize, c.TargetVocabSize-c.ShortlistSize)
		}
	}
	if c.CharMode && c.CharFile == "" {
		return errors.New("char_mode requires char_file")
	}
	return nil
}
