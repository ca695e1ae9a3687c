package main

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/Noofbiz/seqbatch/prep"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// batchStats is what the CLI keeps of every produced batch.
type batchStats struct {
	SourceLen      int
	TargetLen      int
	SourceWgradLen int
	TargetWgradLen int
	UniqueSampled  int
	Examples       int
	Words          int
	SameEpoch      bool

	// PadRatio is the share of source-input cells that are padding.
	PadRatio float64
}

func statsOf(b *prep.Batch) batchStats {
	s := batchStats{
		SourceLen:      b.SourceLen,
		TargetLen:      b.TargetLen,
		SourceWgradLen: b.SourceWgradLen,
		TargetWgradLen: b.TargetWgradLen,
		UniqueSampled:  b.UniqueSampled,
		Examples:       b.Examples,
		Words:          b.Words,
		SameEpoch:      b.SameEpoch,
	}
	if cells := len(b.SourceInput); cells > 0 {
		pad := 0
		for _, v := range b.SourceInput {
			if v == prep.Pad {
				pad++
			}
		}
		s.PadRatio = float64(pad) / float64(cells)
	}
	return s
}

type series struct {
	name string
	col  color.RGBA
	xys  plotter.XYs
}

// plotStats writes two PNGs into outDir: padded lengths with padding ratio,
// and the distinct-id counts per batch. Epoch boundaries are drawn as
// vertical lines.
func plotStats(outDir string, stats []batchStats) error {
	if err := ensureDir(outDir); err != nil {
		return err
	}
	n := len(stats)
	srcLen := make(plotter.XYs, n)
	tgtLen := make(plotter.XYs, n)
	pad := make(plotter.XYs, n)
	srcK := make(plotter.XYs, n)
	tgtK := make(plotter.XYs, n)
	uniq := make(plotter.XYs, n)
	var boundaries []float64
	maxLen := 0.0
	for i, s := range stats {
		x := float64(i + 1)
		srcLen[i] = plotter.XY{X: x, Y: float64(s.SourceLen)}
		tgtLen[i] = plotter.XY{X: x, Y: float64(s.TargetLen)}
		srcK[i] = plotter.XY{X: x, Y: float64(s.SourceWgradLen)}
		tgtK[i] = plotter.XY{X: x, Y: float64(s.TargetWgradLen)}
		uniq[i] = plotter.XY{X: x, Y: float64(s.UniqueSampled)}
		maxLen = math.Max(maxLen, math.Max(float64(s.SourceLen), float64(s.TargetLen)))
		if !s.SameEpoch {
			boundaries = append(boundaries, x)
		}
	}
	// scale the padding ratio onto the length axis
	for i, s := range stats {
		pad[i] = plotter.XY{X: float64(i + 1), Y: s.PadRatio * maxLen}
	}

	lengths := []series{
		{"source L", color.RGBA{R: 20, G: 80, B: 200, A: 220}, srcLen},
		{"target L", color.RGBA{R: 200, G: 30, B: 30, A: 220}, tgtLen},
		{"padding ratio (scaled to max L)", color.RGBA{R: 120, G: 120, B: 120, A: 180}, pad},
	}
	if err := plotLines(filepath.Join(outDir, "lengths.png"), "Padded length per batch", "L", lengths, boundaries); err != nil {
		return err
	}

	ids := []series{
		{"source k", color.RGBA{R: 20, G: 80, B: 200, A: 220}, srcK},
		{"target k", color.RGBA{R: 200, G: 30, B: 30, A: 220}, tgtK},
		{"unique sampled", color.RGBA{R: 40, G: 120, B: 40, A: 220}, uniq},
	}
	return plotLines(filepath.Join(outDir, "distinct_ids.png"), "Distinct ids per batch", "ids", ids, boundaries)
}

func plotLines(outPath, title, ylabel string, lines []series, boundaries []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "batch"
	p.Y.Label.Text = ylabel

	var all plotter.XYs
	for _, s := range lines {
		if len(s.xys) == 0 {
			continue
		}
		l, err := plotter.NewLine(s.xys)
		if err != nil {
			return err
		}
		l.Color = s.col
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add(s.name, l)
		all = append(all, s.xys...)
	}

	p.Add(plotter.NewGrid())
	xmin, xmax, ymin, ymax := autoRange(all)
	p.X.Min = xmin
	p.X.Max = xmax
	p.Y.Min = ymin
	p.Y.Max = ymax

	for i, x := range boundaries {
		l, err := plotter.NewLine(plotter.XYs{{X: x, Y: ymin}, {X: x, Y: ymax}})
		if err != nil {
			return err
		}
		l.Color = color.RGBA{A: 90}
		l.Width = vg.Points(0.6)
		l.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
		p.Add(l)
		if i == 0 {
			p.Legend.Add("epoch boundary", l)
		}
	}

	return p.Save(8*vg.Inch, 5*vg.Inch, outPath)
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin = math.Inf(1)
	xmax = math.Inf(-1)
	ymin = math.Inf(1)
	ymax = math.Inf(-1)
	for _, p := range xs {
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
