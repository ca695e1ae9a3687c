package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/seqbatch/prep"
)

// MinibatchFlat stores one minibatch in flat buffers it owns.
type MinibatchFlat struct {
	Size      int
	Examples  int
	SourceLen int
	TargetLen int

	SourceInput  []int32
	SourceOutput []int32
	TargetInput  []int32
	TargetOutput []int32
	Info         []int32

	SourceWgrad    []int32
	TargetWgrad    []int32
	SourceWgradLen int
	TargetWgradLen int

	Sampled       []int32
	UniqueSampled int

	SameEpoch bool
	Words     int
}

// MakeMinibatchFlat copies an engine batch out of the engine's buffers.
func MakeMinibatchFlat(b *prep.Batch) (*MinibatchFlat, error) {
	if b == nil {
		return nil, fmt.Errorf("batch is nil")
	}
	srcCells := b.Size * b.SourceLen
	tgtCells := b.Size * b.TargetLen
	checks := []struct {
		name string
		got  int
		want int
	}{
		{"source input", len(b.SourceInput), srcCells},
		{"source output", len(b.SourceOutput), srcCells},
		{"source wgrad", len(b.SourceWgrad), srcCells},
		{"target input", len(b.TargetInput), tgtCells},
		{"target output", len(b.TargetOutput), tgtCells},
		{"target wgrad", len(b.TargetWgrad), tgtCells},
		{"batch info", len(b.Info), 2 * b.Size},
	}
	for _, c := range checks {
		if c.got != c.want {
			return nil, fmt.Errorf("%s has %d cells, expected %d", c.name, c.got, c.want)
		}
	}

	f := &MinibatchFlat{
		Size:           b.Size,
		Examples:       b.Examples,
		SourceLen:      b.SourceLen,
		TargetLen:      b.TargetLen,
		SourceInput:    clone(b.SourceInput),
		SourceOutput:   clone(b.SourceOutput),
		TargetInput:    clone(b.TargetInput),
		TargetOutput:   clone(b.TargetOutput),
		Info:           clone(b.Info),
		SourceWgrad:    clone(b.SourceWgrad),
		TargetWgrad:    clone(b.TargetWgrad),
		SourceWgradLen: b.SourceWgradLen,
		TargetWgradLen: b.TargetWgradLen,
		UniqueSampled:  b.UniqueSampled,
		SameEpoch:      b.SameEpoch,
		Words:          b.Words,
	}
	if b.Sampled != nil {
		f.Sampled = clone(b.Sampled)
	}
	return f, nil
}

func clone(s []int32) []int32 {
	out := make([]int32, len(s))
	copy(out, s)
	return out
}

// ToGomlxTensors converts the batch into gomlx tensors, see the package
// comment for the order of inputs and labels.
func (f *MinibatchFlat) ToGomlxTensors() (inputs, labels []*tensors.Tensor, err error) {
	if f.Size == 0 {
		return nil, nil, fmt.Errorf("empty minibatch")
	}
	inputs = []*tensors.Tensor{
		matrixTensor(f.SourceInput, f.SourceLen, f.Size),
		matrixTensor(f.TargetInput, f.TargetLen, f.Size),
		matrixTensor(f.Info, 2, f.Size),
		vectorTensor(f.SourceWgrad),
		vectorTensor(f.TargetWgrad),
	}
	if f.Sampled != nil {
		inputs = append(inputs, vectorTensor(f.Sampled))
	}
	labels = []*tensors.Tensor{
		matrixTensor(f.SourceOutput, f.SourceLen, f.Size),
		matrixTensor(f.TargetOutput, f.TargetLen, f.Size),
	}
	return inputs, labels, nil
}

// matrixTensor builds a [rows, cols] int32 tensor from a row-major buffer.
// A batch whose sentences are all empty gives rows == 0, which still keeps
// the [0, cols] shape.
func matrixTensor(data []int32, rows, cols int) *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(clone(data[:rows*cols]), rows, cols)
}

func vectorTensor(data []int32) *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(clone(data), len(data))
}
