package corpus

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/yargevad/filepathx"
)

// Find returns the first corpus file (by path order) found anywhere under dir.
// Corpora are plain text files with a .txt extension.
func Find(dir string) (string, error) {
	matches, err := filepathx.Glob(filepath.Join(dir, "**", "*.txt"))
	if err != nil {
		return "", fmt.Errorf("failed to search %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no corpus files found in %s", dir)
	}
	sort.Strings(matches)
	return matches[0], nil
}
