package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This package adapts the preprocessing engine to GoMLX training loops.
//
// Layout and intended usage:
//
// MinibatchDataset
//   - Owns a corpus cursor and a prep.Engine over it.
//   - Every Yield produces the next minibatch as gomlx tensors. The dataset
//     never ends: at the end of the corpus it wraps to the first example and
//     reports the boundary through BatchSpec.SameEpoch.
//   - Inputs, in order: source_input, target_input, batch_info,
//     source_wgrad, target_wgrad and, with truncated softmax, sampled.
//   - Labels, in order: source_output, target_output.
//
// Matrices are batch-major int32 tensors of shape [L, B]: row j holds
// position j of every example in the batch.
//
// MinibatchFlat
//   - An owned copy of one engine batch, safe to keep across Yield calls.
//   - Serializable with encoding/gob (see SaveSnapshot / LoadSnapshot).
type Dataset interface {
	Name() string
	Reset() error

	// To implement gomlx's train.Dataset interface
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
}
