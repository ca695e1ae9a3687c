package prep

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal preprocessing error. None of them is retryable: a
// batch with corrupt indices would silently poison the training step, so the
// engine stops at the first one.
type Kind int

const (
	// KindCorpusFormat covers malformed line counts, non-integer tokens and
	// ids outside the configured vocabulary.
	KindCorpusFormat Kind = iota + 1

	// KindSamplingCapacity means a batch references more distinct ids above
	// the shortlist than the truncated softmax has sample rows.
	KindSamplingCapacity

	// KindInvariant is an internal consistency breach.
	KindInvariant
)

var (
	ErrCorpusFormat     = errors.New("corpus format error")
	ErrSamplingCapacity = errors.New("truncated softmax sample size too small")
	ErrInvariant        = errors.New("invariant violation")
)

func (k Kind) sentinel() error {
	switch k {
	case KindCorpusFormat:
		return ErrCorpusFormat
	case KindSamplingCapacity:
		return ErrSamplingCapacity
	case KindInvariant:
		return ErrInvariant
	}
	return nil
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// FatalError is returned by every operation that must abort preprocessing.
// errors.Is matches it against the sentinel of its Kind as well as against
// the wrapped cause.
type FatalError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func (e *FatalError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func fatalf(kind Kind, op, format string, args ...any) error {
	return &FatalError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the Kind of a fatal error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}
