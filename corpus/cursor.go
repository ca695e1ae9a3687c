package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// LinesPerExample is the number of consecutive lines that make up one
// training example: source input, source output, target input, target output.
const LinesPerExample = 4

// maxLineBytes bounds a single token line. Sentences are capped by the
// engine's max sentence length long before this matters.
const maxLineBytes = 4 << 20

// ErrFormat is returned (wrapped) for malformed corpora: a line count that is
// not a multiple of LinesPerExample, a non-integer token, a truncated file.
var ErrFormat = errors.New("corpus format error")

// Cursor is a sequential reader over a fixed corpus file of token-id lines.
// It never stops at end of file: once every example has been handed out it
// rewinds to the first line and reports an epoch boundary.
type Cursor struct {
	// Path of the corpus file.
	Path string

	file  *os.File
	sc    *bufio.Scanner
	stats Stats

	// line is the 1-based number of the next line to be read.
	line int

	// block is reused by every NextBlock call.
	block []string
}

// Open opens the corpus at path and computes its statistics. The file must
// contain at least one example and its line count must be a multiple of
// LinesPerExample.
func Open(path string) (*Cursor, error) {
	stats, err := StatsFor(path)
	if err != nil {
		return nil, err
	}
	if stats.Lines == 0 {
		return nil, fmt.Errorf("%w: %s has no examples", ErrFormat, path)
	}
	if stats.Lines%LinesPerExample != 0 {
		return nil, fmt.Errorf("%w: %s has %d lines, not a multiple of %d",
			ErrFormat, path, stats.Lines, LinesPerExample)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus %s: %w", path, err)
	}

	c := &Cursor{
		Path:  path,
		file:  f,
		stats: stats,
		line:  1,
	}
	c.sc = newScanner(f)
	return c, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return sc
}

// Stats returns the statistics computed when the corpus was opened.
func (c *Cursor) Stats() Stats {
	return c.stats
}

// Position returns the 1-based line number the next read starts at.
func (c *Cursor) Position() int {
	return c.line
}

// Examples returns the number of examples in the corpus.
func (c *Cursor) Examples() int {
	return c.stats.Lines / LinesPerExample
}

// Rewind moves the cursor back to the first line of the corpus.
func (c *Cursor) Rewind() error {
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind %s: %w", c.Path, err)
	}
	c.sc = newScanner(c.file)
	c.line = 1
	return nil
}

// NextBlock reads up to n examples (n*LinesPerExample lines) starting at the
// current position.
//
// If the corpus runs out before n examples were read, the cursor rewinds and
// the partial block is returned with sameEpoch=false. The block that consumes
// the last example of the corpus also rewinds and reports sameEpoch=false, so
// the next call always starts a fresh epoch at line 1.
//
// The returned slice is owned by the cursor and overwritten by the next call.
func (c *Cursor) NextBlock(n int) (lines []string, sameEpoch bool, err error) {
	c.block = c.block[:0]
	sameEpoch = true

	for i := 0; i < n; i++ {
		if c.line > c.stats.Lines {
			if err := c.Rewind(); err != nil {
				return nil, false, err
			}
			sameEpoch = false
			break
		}
		for k := 0; k < LinesPerExample; k++ {
			if !c.sc.Scan() {
				if err := c.sc.Err(); err != nil {
					return nil, false, fmt.Errorf("failed to read %s at line %d: %w", c.Path, c.line+k, err)
				}
				return nil, false, fmt.Errorf("%w: %s ended at line %d, expected %d lines",
					ErrFormat, c.Path, c.line+k-1, c.stats.Lines)
			}
			c.block = append(c.block, c.sc.Text())
		}
		c.line += LinesPerExample
	}

	if sameEpoch && c.line > c.stats.Lines {
		if err := c.Rewind(); err != nil {
			return nil, false, err
		}
		sameEpoch = false
	}
	return c.block, sameEpoch, nil
}

// Close releases the underlying file.
func (c *Cursor) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}
