package datasets

import (
	"fmt"
	"log"

	"github.com/Noofbiz/seqbatch/corpus"
	"github.com/Noofbiz/seqbatch/prep"
)

// CharMirror keeps a character-level corpus in lockstep with the token
// corpus. The character file uses the same 4-lines-per-example layout; only
// the position is tracked, the character data itself is left to the trainer.
type CharMirror struct {
	cursor *corpus.Cursor
	path   string
	size   int

	// reads counts ReadMinibatch calls since the last Reset.
	reads int

	// wrapped is set once the character file has ended a pass and is cleared
	// when the token corpus ends its pass too.
	wrapped bool
}

// OpenCharMirror opens the character file at path. size is the minibatch size
// of the engine it follows.
func OpenCharMirror(path string, size int) (*CharMirror, error) {
	if size <= 0 {
		return nil, fmt.Errorf("minibatch size must be > 0, got %d", size)
	}
	c, err := corpus.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open character file: %w", err)
	}
	return &CharMirror{cursor: c, path: path, size: size}, nil
}

// ReadMinibatch advances past one minibatch of character examples. It fails
// when the character file already ended its pass and the token corpus did
// not.
func (m *CharMirror) ReadMinibatch() error {
	if m.wrapped {
		log.Printf("[Epoch] character file %s ended a pass %d batches in, before the token corpus", m.path, m.reads)
		return fmt.Errorf("character file %s has fewer minibatches than the token corpus", m.path)
	}
	_, sameEpoch, err := m.cursor.NextBlock(m.size)
	if err != nil {
		return err
	}
	m.reads++
	m.wrapped = !sameEpoch
	return nil
}

// Reset is called when the token corpus ends a pass. The character file must
// have ended its pass on the same minibatch.
func (m *CharMirror) Reset() error {
	if !m.wrapped {
		log.Printf("[Epoch] token corpus ended a pass after %d batches, character file %s did not", m.reads, m.path)
		return fmt.Errorf("character file %s has more minibatches than the token corpus", m.path)
	}
	return m.Rewind()
}

// Rewind moves back to the first character example without checking that
// the pass ended.
func (m *CharMirror) Rewind() error {
	m.reads = 0
	m.wrapped = false
	return m.cursor.Rewind()
}

// Position returns the 1-based line the next character read starts at.
func (m *CharMirror) Position() int {
	return m.cursor.Position()
}

// Reads returns the number of minibatches read since the last Reset.
func (m *CharMirror) Reads() int {
	return m.reads
}

// Close releases the character file.
func (m *CharMirror) Close() error {
	return m.cursor.Close()
}

var _ prep.CharReader = (*CharMirror)(nil)
