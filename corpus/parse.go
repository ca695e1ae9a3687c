package corpus

import (
	"fmt"
	"strconv"
)

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == '\v' || b == '\f'
}

// CountTokens returns the number of whitespace-separated fields in line.
func CountTokens(line string) int {
	n := 0
	inField := false
	for i := 0; i < len(line); i++ {
		if isSpace(line[i]) {
			inField = false
			continue
		}
		if !inField {
			n++
			inField = true
		}
	}
	return n
}

// ParseTokens parses the whitespace-separated integer ids on line and appends
// them to dst. No allocation happens once dst has enough capacity.
//
// Range checks are left to the caller; only non-integer fields are rejected.
func ParseTokens(line string, dst []int32) ([]int32, error) {
	i := 0
	for i < len(line) {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		start := i
		for i < len(line) && !isSpace(line[i]) {
			i++
		}
		if start == i {
			break
		}
		v, err := strconv.ParseInt(line[start:i], 10, 32)
		if err != nil {
			return dst, fmt.Errorf("%w: token %q is not an integer id", ErrFormat, line[start:i])
		}
		dst = append(dst, int32(v))
	}
	return dst, nil
}
