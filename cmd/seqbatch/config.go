package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/Noofbiz/seqbatch/prep"
)

// runConfig is the effective configuration of one run: the engine config
// plus what the CLI does with the batches.
type runConfig struct {
	prep.Config

	Corpus    string `json:"corpus"`
	Batches   int    `json:"batches"`
	LogEvery  int    `json:"log_every"`
	Snapshot  string `json:"snapshot"`
	PlotDir   string `json:"plot_dir"`
	MonteSims int    `json:"monte_sims"`
	MonteDraw int    `json:"monte_draws"`
	MonteConf string `json:"monte_config"`
}

func defaultRunConfig() runConfig {
	return runConfig{
		Config: prep.Config{
			MinibatchSize:     64,
			MaxSentenceLength: 100,
			SourceVocabSize:   32000,
			TargetVocabSize:   32000,
			ShortlistSize:     2000,
			SampledSize:       1000,
		},
		Corpus:    "assets/corpus",
		Batches:   100,
		LogEvery:  10,
		MonteDraw: 1000,
	}
}

// loadRunConfig reads a JSON config over the defaults. Fields missing from
// the file keep their default values.
func loadRunConfig(path string, base runConfig) (runConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}
	cfg := base
	if err := json.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return cfg, nil
}

// cliFlags holds the flag values; only flags set on the command line are
// applied over the JSON config.
type cliFlags struct {
	config      string
	printConfig bool
	corpus      string
	batches     int
	logEvery    int
	snapshot    string
	plotDir     string
	minibatch   int
	maxLen      int
	srcVocab    int
	tgtVocab    int
	truncated   bool
	shortlist   int
	sampled     int
	charMode    bool
	charFile    string
	seed        int64
	monteSims   int
	monteDraws  int
	monteConfig string
}

func registerFlags(fs *flag.FlagSet, def runConfig) *cliFlags {
	f := &cliFlags{}
	fs.StringVar(&f.config, "config", "", "path to JSON config; flags set on the command line override it")
	fs.BoolVar(&f.printConfig, "print-effective-config", false, "print the effective (JSON+CLI merged) configuration and exit")
	fs.StringVar(&f.corpus, "corpus", def.Corpus, "corpus file, or a directory searched recursively for *.txt")
	fs.IntVar(&f.batches, "batches", def.Batches, "number of minibatches to produce")
	fs.IntVar(&f.logEvery, "log-every", def.LogEvery, "log batch statistics every N batches (0 = never)")
	fs.StringVar(&f.snapshot, "snapshot", def.Snapshot, "if set, write all produced batches to this gob file")
	fs.StringVar(&f.plotDir, "plot-dir", def.PlotDir, "if set, write per-batch statistics plots to this directory")
	fs.IntVar(&f.minibatch, "minibatch-size", def.MinibatchSize, "examples per minibatch")
	fs.IntVar(&f.maxLen, "max-sentence-length", def.MaxSentenceLength, "maximum padded sentence length")
	fs.IntVar(&f.srcVocab, "source-vocab-size", def.SourceVocabSize, "source vocabulary size")
	fs.IntVar(&f.tgtVocab, "target-vocab-size", def.TargetVocabSize, "target vocabulary size")
	fs.BoolVar(&f.truncated, "truncated-softmax", def.TruncatedSoftmax, "enable the sampled output vocabulary")
	fs.IntVar(&f.shortlist, "shortlist-size", def.ShortlistSize, "ids below this are never sampled")
	fs.IntVar(&f.sampled, "sampled-size", def.SampledSize, "number of sample rows")
	fs.BoolVar(&f.charMode, "char-mode", def.CharMode, "follow a character-level corpus in lockstep")
	fs.StringVar(&f.charFile, "char-file", def.CharFile, "character-level corpus used with -char-mode")
	fs.Int64Var(&f.seed, "seed", def.Seed, "sampler seed (0 = time based)")
	fs.IntVar(&f.monteSims, "monte-sims", def.MonteSims, "if > 0, run a reservoir uniformity check with this many simulations")
	fs.IntVar(&f.monteDraws, "monte-draws", def.MonteDraw, "sampler draws per uniformity simulation")
	fs.StringVar(&f.monteConfig, "monte-config", def.MonteConf, "path to JSON monte configuration (optional)")
	return f
}

// apply copies the explicitly set flags into cfg.
func (f *cliFlags) apply(fs *flag.FlagSet, cfg *runConfig) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "corpus":
			cfg.Corpus = f.corpus
		case "batches":
			cfg.Batches = f.batches
		case "log-every":
			cfg.LogEvery = f.logEvery
		case "snapshot":
			cfg.Snapshot = f.snapshot
		case "plot-dir":
			cfg.PlotDir = f.plotDir
		case "minibatch-size":
			cfg.MinibatchSize = f.minibatch
		case "max-sentence-length":
			cfg.MaxSentenceLength = f.maxLen
		case "source-vocab-size":
			cfg.SourceVocabSize = f.srcVocab
		case "target-vocab-size":
			cfg.TargetVocabSize = f.tgtVocab
		case "truncated-softmax":
			cfg.TruncatedSoftmax = f.truncated
		case "shortlist-size":
			cfg.ShortlistSize = f.shortlist
		case "sampled-size":
			cfg.SampledSize = f.sampled
		case "char-mode":
			cfg.CharMode = f.charMode
		case "char-file":
			cfg.CharFile = f.charFile
		case "seed":
			cfg.Seed = f.seed
		case "monte-sims":
			cfg.MonteSims = f.monteSims
		case "monte-draws":
			cfg.MonteDraw = f.monteDraws
		case "monte-config":
			cfg.MonteConf = f.monteConfig
		}
	})
}

// effectiveConfig merges defaults, the optional JSON file and the flags set
// on the command line, in that order.
func effectiveConfig(fs *flag.FlagSet, f *cliFlags) (runConfig, error) {
	cfg := defaultRunConfig()
	if f.config != "" {
		var err error
		cfg, err = loadRunConfig(f.config, cfg)
		if err != nil {
			return cfg, err
		}
	}
	f.apply(fs, &cfg)
	if cfg.Batches <= 0 {
		return cfg, fmt.Errorf("batches must be > 0, got %d", cfg.Batches)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
