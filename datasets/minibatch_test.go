package datasets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/seqbatch/prep"
)

// writeCorpus writes 4-line examples into dir/name and returns its path.
func writeCorpus(t *testing.T, dir, name string, examples [][4]string) string {
	t.Helper()
	var lines []string
	for _, ex := range examples {
		lines = append(lines, ex[:]...)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func testConfig(b int) prep.Config {
	return prep.Config{
		MinibatchSize:     b,
		MaxSentenceLength: 6,
		SourceVocabSize:   16,
		TargetVocabSize:   16,
		Seed:              7,
	}
}

var threeExamples = [][4]string{
	{"1 2 3", "2 3 4", "5 6", "6 7"},
	{"9 8 7 6 5", "8 7 6 5 4", "3", "4"},
	{"1", "2", "3 3 3", "4 4 4"},
}

func TestYield_TensorsAndSpec(t *testing.T) {
	path := writeCorpus(t, t.TempDir(), "train.txt", threeExamples[:2])
	d, err := NewMinibatchDataset(path, testConfig(2))
	if err != nil {
		t.Fatalf("NewMinibatchDataset failed: %v", err)
	}
	defer d.Close()

	spec, inputs, labels, err := d.Yield()
	if err != nil {
		t.Fatalf("Yield failed: %v", err)
	}
	if len(inputs) != 5 || len(labels) != 2 {
		t.Fatalf("got %d inputs, %d labels want 5, 2", len(inputs), len(labels))
	}

	srcIn, ok := inputs[0].Value().([][]int32)
	if !ok {
		t.Fatalf("source input value has type %T", inputs[0].Value())
	}
	if len(srcIn) != 5 || len(srcIn[0]) != 2 {
		t.Fatalf("source input shape: got [%d, %d] want [5, 2]", len(srcIn), len(srcIn[0]))
	}
	// row j holds position j of every example
	if srcIn[0][0] != 1 || srcIn[0][1] != 9 || srcIn[4][0] != prep.Pad || srcIn[4][1] != 5 {
		t.Fatalf("source input: got %v", srcIn)
	}

	info, ok := inputs[2].Value().([][]int32)
	if !ok || len(info) != 2 {
		t.Fatalf("batch info: got %v", inputs[2].Value())
	}
	if info[0][0] != 3 || info[0][1] != 5 || info[1][0] != 2 || info[1][1] != 0 {
		t.Fatalf("batch info: got %v want [[3 5] [2 0]]", info)
	}

	tgtOut, ok := labels[1].Value().([][]int32)
	if !ok || len(tgtOut) != 2 {
		t.Fatalf("target output: got %v", labels[1].Value())
	}
	if tgtOut[1][0] != 7 || tgtOut[1][1] != prep.Pad {
		t.Fatalf("target output: got %v", tgtOut)
	}

	bs, ok := spec.(*BatchSpec)
	if !ok {
		t.Fatalf("spec has type %T", spec)
	}
	if bs.SameEpoch || bs.Epoch != 1 || bs.Batch != 1 || bs.Examples != 2 {
		t.Fatalf("spec: got %+v", bs)
	}
	if bs.SourceWgradLen != 8 {
		t.Fatalf("source k: got %d want 8", bs.SourceWgradLen)
	}
}

func TestYield_EmptySentences(t *testing.T) {
	path := writeCorpus(t, t.TempDir(), "train.txt", [][4]string{
		{"", "", "", ""},
		{"", "", "", ""},
	})
	d, err := NewMinibatchDataset(path, testConfig(3))
	if err != nil {
		t.Fatalf("NewMinibatchDataset failed: %v", err)
	}
	defer d.Close()

	spec, inputs, labels, err := d.Yield()
	if err != nil {
		t.Fatalf("Yield failed: %v", err)
	}
	bs := spec.(*BatchSpec)
	if bs.SourceLen != 0 || bs.TargetLen != 0 || bs.Examples != 2 || bs.SameEpoch {
		t.Fatalf("spec: got %+v", bs)
	}
	for name, tn := range map[string]*tensors.Tensor{
		"source input":  inputs[0],
		"target input":  inputs[1],
		"source output": labels[0],
		"target output": labels[1],
	} {
		dims := tn.Shape().Dimensions
		if len(dims) != 2 || dims[0] != 0 || dims[1] != 3 {
			t.Fatalf("%s shape: got %v want [0 3]", name, dims)
		}
	}
	if dims := inputs[2].Shape().Dimensions; len(dims) != 2 || dims[0] != 2 || dims[1] != 3 {
		t.Fatalf("batch info shape: got %v want [2 3]", dims)
	}
	for i := 3; i < 5; i++ {
		if dims := inputs[i].Shape().Dimensions; len(dims) != 1 || dims[0] != 0 {
			t.Fatalf("input %d shape: got %v want [0]", i, dims)
		}
	}
}

func TestYield_WrapsForever(t *testing.T) {
	path := writeCorpus(t, t.TempDir(), "train.txt", threeExamples)
	d, err := NewMinibatchDataset(path, testConfig(2))
	if err != nil {
		t.Fatalf("NewMinibatchDataset failed: %v", err)
	}
	defer d.Close()

	// 3 examples in batches of 2: [0 1] [2 pad] [0 1] [2 pad]
	wantSame := []bool{true, false, true, false}
	wantExamples := []int{2, 1, 2, 1}
	for i := range wantSame {
		spec, _, _, err := d.Yield()
		if err != nil {
			t.Fatalf("batch %d: Yield failed: %v", i, err)
		}
		bs := spec.(*BatchSpec)
		if bs.SameEpoch != wantSame[i] || bs.Examples != wantExamples[i] {
			t.Fatalf("batch %d: got same=%v examples=%d want %v, %d",
				i, bs.SameEpoch, bs.Examples, wantSame[i], wantExamples[i])
		}
	}
	if d.Engine().Epoch() != 2 {
		t.Fatalf("epoch: got %d want 2", d.Engine().Epoch())
	}
}

func TestYield_Sampled(t *testing.T) {
	path := writeCorpus(t, t.TempDir(), "train.txt", threeExamples)
	cfg := testConfig(3)
	cfg.TruncatedSoftmax = true
	cfg.ShortlistSize = 5
	cfg.SampledSize = 4
	d, err := NewMinibatchDataset(path, cfg)
	if err != nil {
		t.Fatalf("NewMinibatchDataset failed: %v", err)
	}
	defer d.Close()

	spec, inputs, labels, err := d.Yield()
	if err != nil {
		t.Fatalf("Yield failed: %v", err)
	}
	if len(inputs) != 6 {
		t.Fatalf("got %d inputs want 6", len(inputs))
	}
	sampled, ok := inputs[5].Value().([]int32)
	if !ok || len(sampled) != 4 {
		t.Fatalf("sampled: got %v", inputs[5].Value())
	}
	// 6 and 7 are the only target outputs above the shortlist
	if bs := spec.(*BatchSpec); bs.UniqueSampled != 2 {
		t.Fatalf("unique sampled: got %d want 2", bs.UniqueSampled)
	}
	if sampled[0] != 6 || sampled[1] != 7 {
		t.Fatalf("sampled: got %v want [6 7 ...]", sampled)
	}
	tgtOut := labels[1].Value().([][]int32)
	if tgtOut[0][0] != 0 || tgtOut[0][1] != 4 || tgtOut[1][0] != 1 {
		t.Fatalf("target output: got %v", tgtOut)
	}
}

func TestReset_RewindsCorpus(t *testing.T) {
	path := writeCorpus(t, t.TempDir(), "train.txt", threeExamples)
	d, err := NewMinibatchDataset(path, testConfig(1))
	if err != nil {
		t.Fatalf("NewMinibatchDataset failed: %v", err)
	}
	defer d.Close()

	first, err := d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	firstLen := first.SourceLen
	if _, err := d.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if err := d.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	again, err := d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if again.SourceLen != firstLen || again.SourceInput[0] != 1 {
		t.Fatalf("after Reset: got len %d first id %d want %d, 1", again.SourceLen, again.SourceInput[0], firstLen)
	}
}

func TestReset_RestoresInEpoch(t *testing.T) {
	path := writeCorpus(t, t.TempDir(), "train.txt", threeExamples)
	d, err := NewMinibatchDataset(path, testConfig(2))
	if err != nil {
		t.Fatalf("NewMinibatchDataset failed: %v", err)
	}
	defer d.Close()

	if _, err := d.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if err := d.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	// reset in the middle of a pass, then run it to the end
	for i := 0; i < 2; i++ {
		if _, err := d.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}
	if d.Engine().State() != prep.EpochBoundary || d.Engine().Epoch() != 1 {
		t.Fatalf("before Reset: state %v epoch %d want %v, 1", d.Engine().State(), d.Engine().Epoch(), prep.EpochBoundary)
	}
	if err := d.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if d.Engine().State() != prep.InEpoch {
		t.Fatalf("after Reset: state %v want %v", d.Engine().State(), prep.InEpoch)
	}
	if d.Engine().Epoch() != 1 || d.Engine().Batches() != 3 {
		t.Fatalf("counters after Reset: epoch %d batches %d want 1, 3", d.Engine().Epoch(), d.Engine().Batches())
	}
}

func TestCharMirror_FollowsEngine(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpus(t, dir, "train.txt", threeExamples)
	charPath := writeCorpus(t, dir, "chars.txt", [][4]string{
		{"a b", "b c", "d", "e"},
		{"f", "g", "h", "i"},
		{"j", "k", "l", "m"},
	})
	cfg := testConfig(2)
	cfg.CharMode = true
	cfg.CharFile = charPath
	d, err := NewMinibatchDataset(path, cfg)
	if err != nil {
		t.Fatalf("NewMinibatchDataset failed: %v", err)
	}
	defer d.Close()

	if _, err := d.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if d.chars.Reads() != 1 || d.chars.Position() != 9 {
		t.Fatalf("char mirror: reads=%d position=%d want 1, 9", d.chars.Reads(), d.chars.Position())
	}
	// second batch ends the epoch and resets the mirror
	if _, err := d.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if d.chars.Reads() != 0 || d.chars.Position() != 1 {
		t.Fatalf("char mirror after epoch: reads=%d position=%d want 0, 1", d.chars.Reads(), d.chars.Position())
	}
}

func TestCharMirror_LosesLockstep(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpus(t, dir, "train.txt", threeExamples)
	chars := [][4]string{
		{"a", "b", "c", "d"},
		{"e", "f", "g", "h"},
		{"i", "j", "k", "l"},
		{"m", "n", "o", "p"},
		{"q", "r", "s", "t"},
	}
	tests := []struct {
		name     string
		examples int
		okBatch  int // batches that succeed before the error
	}{
		// the character file ends its pass on batch 1, the tokens on batch 2
		{"shorter", 2, 1},
		// the tokens end their pass on batch 2 with characters left over
		{"longer", 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(2)
			cfg.CharMode = true
			cfg.CharFile = writeCorpus(t, dir, tt.name+".txt", chars[:tt.examples])
			d, err := NewMinibatchDataset(path, cfg)
			if err != nil {
				t.Fatalf("NewMinibatchDataset failed: %v", err)
			}
			defer d.Close()

			for i := 0; i < tt.okBatch; i++ {
				if _, err := d.Next(); err != nil {
					t.Fatalf("batch %d: Next failed: %v", i, err)
				}
			}
			if _, err := d.Next(); err == nil || !strings.Contains(err.Error(), "character") {
				t.Fatalf("expected a character lockstep error, got %v", err)
			}
			if d.Engine().Err() == nil {
				t.Fatalf("engine not stopped after losing lockstep")
			}
		})
	}
}

func TestNewMinibatchDataset_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewMinibatchDataset(filepath.Join(dir, "missing.txt"), testConfig(1)); err == nil {
		t.Fatalf("expected error for missing corpus")
	}
	path := writeCorpus(t, dir, "train.txt", threeExamples)
	cfg := testConfig(1)
	cfg.CharMode = true
	cfg.CharFile = filepath.Join(dir, "missing-chars.txt")
	if _, err := NewMinibatchDataset(path, cfg); err == nil {
		t.Fatalf("expected error for missing character file")
	}
	if _, err := NewMinibatchDataset(path, prep.Config{}); err == nil {
		t.Fatalf("expected error for an invalid config")
	}
}
