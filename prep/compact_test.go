package prep

import (
	"errors"
	"math/rand"
	"testing"
)

// checkCompacted verifies the compaction contract for src/dst/k without
// assuming any order inside the prefix.
func checkCompacted(t *testing.T, src, dst []int32, k int) {
	t.Helper()

	want := make(map[int32]bool)
	for _, v := range src {
		if v != Pad {
			want[v] = true
		}
	}
	if k != len(want) {
		t.Fatalf("k: got %d want %d distinct ids", k, len(want))
	}
	got := make(map[int32]bool)
	for i := 0; i < k; i++ {
		v := dst[i]
		if v == Pad {
			t.Fatalf("prefix cell %d is Pad", i)
		}
		if got[v] {
			t.Fatalf("id %d appears twice in prefix %v", v, dst[:k])
		}
		if !want[v] {
			t.Fatalf("id %d in prefix was not in the input", v)
		}
		got[v] = true
	}
	for i := k; i < len(src); i++ {
		if dst[i] != Pad {
			t.Fatalf("suffix cell %d: got %d want Pad", i, dst[i])
		}
	}
}

func TestCompact_Basic(t *testing.T) {
	src := []int32{3, 1, Pad, 3, 7, Pad, 1, 0}
	dst := make([]int32, len(src))

	c := NewCompactor(8)
	k, err := c.Compact(src, dst)
	if err != nil {
		t.Fatalf("Compact error: %v", err)
	}
	checkCompacted(t, src, dst, k)
	if k != 4 {
		t.Fatalf("k: got %d want 4", k)
	}
}

func TestCompact_EdgeShapes(t *testing.T) {
	c := NewCompactor(4)
	cases := [][]int32{
		{},
		{Pad},
		{2},
		{Pad, Pad, Pad},
		{1, 1, 1, 1},
		{Pad, 2},
		{2, Pad},
		{Pad, 0, Pad, 1, Pad, 2, Pad, 3},
	}
	for _, src := range cases {
		dst := make([]int32, len(src))
		k, err := c.Compact(src, dst)
		if err != nil {
			t.Fatalf("Compact(%v) error: %v", src, err)
		}
		checkCompacted(t, src, dst, k)
	}
}

func TestCompact_RandomBatches(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := NewCompactor(50)
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(120)
		src := make([]int32, n)
		for i := range src {
			if rng.Intn(4) == 0 {
				src[i] = Pad
			} else {
				src[i] = int32(rng.Intn(50))
			}
		}
		dst := make([]int32, n)
		k, err := c.Compact(src, dst)
		if err != nil {
			t.Fatalf("trial %d: Compact error: %v", trial, err)
		}
		checkCompacted(t, src, dst, k)
	}
}

func TestCompact_ResetsBetweenCalls(t *testing.T) {
	c := NewCompactor(5)
	dst := make([]int32, 3)
	if _, err := c.Compact([]int32{1, 2, 3}, dst); err != nil {
		t.Fatalf("Compact error: %v", err)
	}
	k, err := c.Compact([]int32{1, 2, 3}, dst)
	if err != nil {
		t.Fatalf("Compact error: %v", err)
	}
	if k != 3 {
		t.Fatalf("second batch must not see ids of the first: k=%d want 3", k)
	}
}

func TestCompact_OutOfRange(t *testing.T) {
	c := NewCompactor(5)
	for _, bad := range []int32{5, 100, -2} {
		_, err := c.Compact([]int32{1, bad}, make([]int32, 2))
		if !errors.Is(err, ErrCorpusFormat) {
			t.Fatalf("id %d: expected ErrCorpusFormat, got %v", bad, err)
		}
		if kind, ok := KindOf(err); !ok || kind != KindCorpusFormat {
			t.Fatalf("id %d: KindOf got (%v, %v)", bad, kind, ok)
		}
	}
}
