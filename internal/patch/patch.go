// Package patch splices line-range edits into file content. Ranges are
// 1-indexed and inclusive, addressing the original line sequence; edits are
// applied in descending start order so earlier ranges are unaffected by later
// splices.
package patch

import (
	"fmt"
	"sort"
	"strings"
)

// Range addresses an inclusive [Start, End] span of 1-indexed lines in the
// original file.
type Range struct {
	Start int
	End   int
}

func (r Range) String() string {
	return fmt.Sprintf("(%d,%d)", r.Start, r.End)
}

func (r Range) valid() bool {
	return r.Start >= 1 && r.End >= r.Start
}

func (r Range) overlaps(o Range) bool {
	return r.Start <= o.End && o.Start <= r.End
}

// Apply rewrites lines by replacing each edited range with its replacement
// text. Replacement text is split on newlines and each line gets its trailing
// "\n" back so the result can be joined into full file content. Overlapping
// or out-of-bounds ranges are an error; nothing is applied partially.
func Apply(lines []string, edits map[Range]string) ([]string, error) {
	if len(edits) == 0 {
		out := make([]string, len(lines))
		copy(out, lines)
		return out, nil
	}

	ranges := make([]Range, 0, len(edits))
	for r := range edits {
		if !r.valid() {
			return nil, fmt.Errorf("invalid range %s", r)
		}
		if r.End > len(lines) {
			return nil, fmt.Errorf("range %s exceeds file length %d", r, len(lines))
		}
		ranges = append(ranges, r)
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start > ranges[j].Start })

	// Descending by start: each range's successor in the slice is the next
	// lower range, so one adjacent check covers all pairs.
	for i := 0; i+1 < len(ranges); i++ {
		if ranges[i].overlaps(ranges[i+1]) {
			return nil, fmt.Errorf("overlapping edit ranges %s and %s", ranges[i+1], ranges[i])
		}
	}

	out := make([]string, len(lines))
	copy(out, lines)
	for _, r := range ranges {
		repl := SplitLines(edits[r])
		out = append(out[:r.Start-1], append(repl, out[r.End:]...)...)
	}
	return out, nil
}

// SplitLines splits text into lines with their trailing "\n" re-appended,
// preserving reassembly fidelity. A trailing newline in the input does not
// produce a phantom empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	parts := strings.Split(text, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p + "\n"
	}
	return out
}

// Join reassembles lines into full file text.
func Join(lines []string) string {
	return strings.Join(lines, "")
}
