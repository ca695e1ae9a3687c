package prep

import (
	"errors"

	"github.com/Noofbiz/seqbatch/corpus"
)

func isFormatErr(err error) bool {
	return errors.Is(err, corpus.ErrFormat)
}

// load parses the example lines of one block into the per-example staging
// buffers and returns the number of examples.
func (e *Engine) load(lines []string) (int, error) {
	const op = "prep.load"

	if len(lines)%corpus.LinesPerExample != 0 {
		return 0, fatalf(KindCorpusFormat, op, "block of %d lines is not made of %d-line examples",
			len(lines), corpus.LinesPerExample)
	}
	n := len(lines) / corpus.LinesPerExample
	if n > e.cfg.MinibatchSize {
		return 0, fatalf(KindInvariant, op, "block holds %d examples, minibatch size is %d", n, e.cfg.MinibatchSize)
	}

	maxLen := e.cfg.MaxSentenceLength
	for i := 0; i < n; i++ {
		off := i * maxLen
		ex := lines[i*corpus.LinesPerExample : (i+1)*corpus.LinesPerExample]
		stage := []struct {
			buf []int32
			len *int
		}{
			{e.tmpSrcIn, &e.lenSrcIn[i]},
			{e.tmpSrcOut, &e.lenSrcOut[i]},
			{e.tmpTgtIn, &e.lenTgtIn[i]},
			{e.tmpTgtOut, &e.lenTgtOut[i]},
		}
		for k, s := range stage {
			got, err := corpus.ParseTokens(ex[k], s.buf[off:off:off+maxLen])
			if err != nil {
				return 0, &FatalError{Kind: KindCorpusFormat, Op: op, Err: err}
			}
			if len(got) > maxLen {
				return 0, fatalf(KindCorpusFormat, op, "example %d line %d has %d tokens, max sentence length is %d",
					i, k+1, len(got), maxLen)
			}
			*s.len = len(got)
		}
	}
	return n, nil
}

// layout transposes the staged examples into the batch-major matrices, pads
// every side to the longest sentence of this batch and fills the batch info.
// Rows at or beyond examples are entirely padding.
func (e *Engine) layout(examples int) (srcLen, tgtLen int, err error) {
	b := e.cfg.MinibatchSize
	for i := 0; i < examples; i++ {
		srcLen = max(srcLen, e.lenSrcIn[i], e.lenSrcOut[i])
		tgtLen = max(tgtLen, e.lenTgtIn[i], e.lenTgtOut[i])
	}

	src := e.cfg.SourceVocabSize
	tgt := e.cfg.TargetVocabSize
	if err := e.transpose(e.tmpSrcIn, e.lenSrcIn, e.srcIn, examples, srcLen, src, "source input"); err != nil {
		return 0, 0, err
	}
	if err := e.transpose(e.tmpSrcOut, e.lenSrcOut, e.srcOut, examples, srcLen, src, "source output"); err != nil {
		return 0, 0, err
	}
	if err := e.transpose(e.tmpTgtIn, e.lenTgtIn, e.tgtIn, examples, tgtLen, tgt, "target input"); err != nil {
		return 0, 0, err
	}
	if err := e.transpose(e.tmpTgtOut, e.lenTgtOut, e.tgtOut, examples, tgtLen, tgt, "target output"); err != nil {
		return 0, 0, err
	}

	for i := 0; i < b; i++ {
		n := 0
		for j := 0; j < srcLen; j++ {
			if e.srcIn[j*b+i] != Pad {
				n++
			}
		}
		e.info[i] = int32(n)
		e.info[b+i] = int32(srcLen - n)
	}
	return srcLen, tgtLen, nil
}

// transpose copies staged example rows into dst at j*B+i, padding to width.
func (e *Engine) transpose(tmp []int32, lens []int, dst []int32, examples, width, vocab int, side string) error {
	b, maxLen := e.cfg.MinibatchSize, e.cfg.MaxSentenceLength
	for i := 0; i < b; i++ {
		n := 0
		if i < examples {
			n = lens[i]
		}
		row := tmp[i*maxLen : i*maxLen+n]
		for j := 0; j < width; j++ {
			v := Pad
			if j < n {
				v = row[j]
				if v < Pad || int(v) >= vocab {
					return fatalf(KindCorpusFormat, "prep.layout", "%s id %d (example %d, position %d) outside vocabulary [0, %d)",
						side, v, i, j, vocab)
				}
			}
			dst[j*b+i] = v
		}
	}
	return nil
}
