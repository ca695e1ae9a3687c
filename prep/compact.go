package prep

// Compactor builds the sparse embedding-update list for one side of a batch:
// the distinct ids a batch references, each once, packed at the front of a
// fixed-size array.
type Compactor struct {
	seen []bool
}

// NewCompactor allocates a presence set over a vocabulary of the given size.
func NewCompactor(vocab int) *Compactor {
	return &Compactor{seen: make([]bool, vocab)}
}

// Vocab returns the vocabulary size the compactor checks ids against.
func (c *Compactor) Vocab() int { return len(c.seen) }

// Compact writes into dst[:len(src)] every distinct id of src followed by Pad
// fill and returns k, the number of distinct ids.
//
// The prefix dst[:k] is a set: the in-place partition that moves ids to the
// front swaps from both ends, so first-occurrence order is not kept.
func (c *Compactor) Compact(src, dst []int32) (int, error) {
	if len(dst) < len(src) {
		return 0, fatalf(KindInvariant, "prep.Compact", "destination holds %d cells, need %d", len(dst), len(src))
	}
	clear(c.seen)

	for i, v := range src {
		switch {
		case v == Pad:
			dst[i] = Pad
		case v < Pad || int(v) >= len(c.seen):
			return 0, fatalf(KindCorpusFormat, "prep.Compact", "id %d at cell %d outside vocabulary [0, %d)", v, i, len(c.seen))
		case c.seen[v]:
			dst[i] = Pad
		default:
			c.seen[v] = true
			dst[i] = v
		}
	}
	return partition(dst[:len(src)]), nil
}

// partition moves every non-Pad value in front of every Pad value with a
// two-pointer scan and returns the length of the non-Pad prefix.
func partition(a []int32) int {
	if len(a) == 0 {
		return 0
	}
	left, right := 0, len(a)-1
	for left < right {
		if a[left] != Pad {
			left++
			continue
		}
		if a[right] == Pad {
			right--
			continue
		}
		a[left], a[right] = a[right], a[left]
		left++
		right--
	}
	if left < len(a) && a[left] != Pad {
		left++
	}
	return left
}
