package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Noofbiz/seqbatch/corpus"
	"github.com/Noofbiz/seqbatch/datasets"
	"github.com/Noofbiz/seqbatch/monte"
	"github.com/Noofbiz/seqbatch/prep"
)

func main() {
	fs := flag.CommandLine
	flags := registerFlags(fs, defaultRunConfig())
	flag.Parse()

	cfg, err := effectiveConfig(fs, flags)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if flags.printConfig {
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			log.Fatalf("failed to encode effective config: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	path, err := resolveCorpus(cfg.Corpus)
	if err != nil {
		log.Fatalf("failed to find corpus: %v", err)
	}

	ds, err := datasets.NewMinibatchDataset(path, cfg.Config)
	if err != nil {
		log.Fatalf("failed to open minibatch dataset: %v", err)
	}
	defer ds.Close()

	stats, flats, err := run(ds, cfg)
	if err != nil {
		if kind, ok := prep.KindOf(err); ok {
			log.Fatalf("[Engine] fatal %s error after %d batches: %v", kind, ds.Engine().Batches(), err)
		}
		log.Fatalf("[Engine] failed after %d batches: %v", ds.Engine().Batches(), err)
	}
	logSummary(stats, ds.Engine().Epoch())

	if cfg.Snapshot != "" {
		if err := datasets.SaveSnapshot(cfg.Snapshot, cfg.Config, flats); err != nil {
			log.Fatalf("[Snapshot] failed to save %s: %v", cfg.Snapshot, err)
		}
		log.Printf("[Snapshot] wrote %d batches to %s", len(flats), cfg.Snapshot)
	}

	if cfg.PlotDir != "" {
		if err := plotStats(cfg.PlotDir, stats); err != nil {
			log.Fatalf("failed to write plots: %v", err)
		}
		log.Printf("Wrote plots to %s", cfg.PlotDir)
	}

	if cfg.MonteSims > 0 {
		if err := checkUniformity(cfg, ds.Engine()); err != nil {
			log.Fatalf("[Monte] %v", err)
		}
	}
}

// resolveCorpus accepts a corpus file or a directory to search.
func resolveCorpus(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return p, nil
	}
	return corpus.Find(p)
}

// run produces cfg.Batches minibatches. Flat copies are only kept when a
// snapshot was requested.
func run(ds *datasets.MinibatchDataset, cfg runConfig) ([]batchStats, []*datasets.MinibatchFlat, error) {
	stats := make([]batchStats, 0, cfg.Batches)
	var flats []*datasets.MinibatchFlat
	start := time.Now()

	for i := 0; i < cfg.Batches; i++ {
		b, err := ds.Next()
		if err != nil {
			return stats, flats, err
		}
		s := statsOf(b)
		stats = append(stats, s)

		if cfg.Snapshot != "" {
			f, err := datasets.MakeMinibatchFlat(b)
			if err != nil {
				return stats, flats, err
			}
			flats = append(flats, f)
		}

		if cfg.LogEvery > 0 && (i+1)%cfg.LogEvery == 0 {
			elapsed := time.Since(start).Seconds()
			log.Printf("[Engine] batch %d/%d: L=%d/%d k=%d/%d sampled=%d words=%d pad=%.1f%% (%.0f batches/s)",
				i+1, cfg.Batches, s.SourceLen, s.TargetLen, s.SourceWgradLen, s.TargetWgradLen,
				s.UniqueSampled, s.Words, 100*s.PadRatio, float64(i+1)/elapsed)
		}
	}
	return stats, flats, nil
}

func logSummary(stats []batchStats, epochs int) {
	if len(stats) == 0 {
		return
	}
	var words int
	var pad float64
	for _, s := range stats {
		words += s.Words
		pad += s.PadRatio
	}
	log.Printf("[Engine] %d batches, %d completed epochs, %d words, mean padding %.1f%%",
		len(stats), epochs, words, 100*pad/float64(len(stats)))
}

// checkUniformity reruns the reservoir over the ids the last batch referenced
// and fails when the free rows are not drawn uniformly.
func checkUniformity(cfg runConfig, e *prep.Engine) error {
	if !cfg.TruncatedSoftmax {
		return fmt.Errorf("uniformity check requires truncated_softmax")
	}
	m, err := monte.NewMonte(cfg.TargetVocabSize, cfg.ShortlistSize, cfg.SampledSize)
	if err != nil {
		return err
	}
	if cfg.Seed != 0 {
		m.SetSeed(cfg.Seed)
	}
	if cfg.MonteConf != "" {
		if err := m.LoadConfig(cfg.MonteConf); err != nil {
			return err
		}
		log.Printf("[Monte] loaded config from %s", cfg.MonteConf)
	}

	var target []int32
	if s := e.Sampler(); s != nil {
		target = append(target, s.Samples()[:s.Unique()]...)
	}
	if m.VocabSize != cfg.TargetVocabSize || m.ShortlistSize != cfg.ShortlistSize || m.SampledSize < len(target) {
		// the batch ids only make sense for the engine's vocabulary
		target = nil
	}

	res, err := m.Check(target, cfg.MonteSims, cfg.MonteDraw)
	if res != nil {
		log.Printf("[Monte] %d draws over %d candidates: expected %.1f, max deviation %.4f, chi-square %.1f",
			res.Draws, len(res.Candidates), res.Expected, res.MaxDeviation, res.ChiSquare)
	}
	return err
}
