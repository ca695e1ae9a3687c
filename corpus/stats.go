package corpus

import (
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru"
)

// Stats summarizes a corpus file.
type Stats struct {
	// Lines is the total number of lines in the file.
	Lines int

	// Words counts tokens on source-input and target-input lines, which is
	// what the trainer reports as words per second.
	Words int

	// TargetWords counts tokens on target-output lines, the denominator for
	// perplexity.
	TargetWords int
}

// statsCacheSize bounds how many corpora keep their statistics memoised.
const statsCacheSize = 64

// statsCache maps a statsKey to the Stats of that file version so reopening
// an unchanged corpus skips the counting pass.
var statsCache, _ = lru.New(statsCacheSize)

type statsKey struct {
	path    string
	size    int64
	modTime int64
}

// StatsFor returns the statistics of the corpus at path, counting them on the
// first call for a given file version.
func StatsFor(path string) (Stats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to stat corpus %s: %w", path, err)
	}
	key := statsKey{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}
	if v, ok := statsCache.Get(key); ok {
		return v.(Stats), nil
	}

	stats, err := countStats(path)
	if err != nil {
		return Stats{}, err
	}
	statsCache.Add(key, stats)
	return stats, nil
}

// countStats scans the whole file once.
func countStats(path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open corpus %s: %w", path, err)
	}
	defer f.Close()

	var s Stats
	sc := newScanner(f)
	for sc.Scan() {
		switch s.Lines % LinesPerExample {
		case 0, 2:
			s.Words += CountTokens(sc.Text())
		case 3:
			s.TargetWords += CountTokens(sc.Text())
		}
		s.Lines++
	}
	if err := sc.Err(); err != nil {
		return Stats{}, fmt.Errorf("failed to count lines in %s: %w", path, err)
	}
	return s, nil
}
