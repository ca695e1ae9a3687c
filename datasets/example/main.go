package main

// Example command that loads a tokenized parallel corpus, preprocesses a few
// minibatches and converts them into gomlx tensors.
//
// Usage:
//   go run ./datasets/example [corpus-dir]
//
// The first *.txt file found under corpus-dir (recursively, default
// ../assets/corpus) is used. Every example in it is 4 lines of integer token
// ids: source input, source output, target input, target output.

import (
	"fmt"
	"log"
	"os"

	"github.com/Noofbiz/seqbatch/corpus"
	"github.com/Noofbiz/seqbatch/datasets"
	"github.com/Noofbiz/seqbatch/prep"
)

func main() {
	dir := "../assets/corpus"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	path, err := corpus.Find(dir)
	if err != nil {
		log.Fatalf("failed to find a corpus: %v", err)
	}
	fmt.Printf("Using corpus: %s\n", path)

	cfg := prep.Config{
		MinibatchSize:     4,
		MaxSentenceLength: 64,
		SourceVocabSize:   32000,
		TargetVocabSize:   32000,
		TruncatedSoftmax:  true,
		ShortlistSize:     2000,
		SampledSize:       512,
		Seed:              1,
	}
	ds, err := datasets.NewMinibatchDataset(path, cfg)
	if err != nil {
		log.Fatalf("failed to load minibatch dataset: %v", err)
	}
	defer ds.Close()
	fmt.Printf("Examples in corpus: %d\n", ds.Cursor().Examples())

	names := []string{"source_input", "target_input", "batch_info", "source_wgrad", "target_wgrad", "sampled"}
	for i := 0; i < 3; i++ {
		spec, inputs, labels, err := ds.Yield()
		if err != nil {
			log.Fatalf("failed to yield batch %d: %v", i, err)
		}
		bs := spec.(*datasets.BatchSpec)
		fmt.Printf("\nBatch %d (epoch %d, same epoch: %v, %d examples)\n", bs.Batch, bs.Epoch, bs.SameEpoch, bs.Examples)
		fmt.Printf("  Source L=%d, target L=%d, words=%d\n", bs.SourceLen, bs.TargetLen, bs.Words)
		fmt.Printf("  Distinct ids: source=%d target=%d, sampled unique=%d\n",
			bs.SourceWgradLen, bs.TargetWgradLen, bs.UniqueSampled)
		for j, in := range inputs {
			fmt.Printf("  input %-13s %s\n", names[j], in.Shape())
		}
		fmt.Printf("  label source_output %s\n", labels[0].Shape())
		fmt.Printf("  label target_output %s\n", labels[1].Shape())
	}

	fmt.Println("\nExample completed successfully!")
}
