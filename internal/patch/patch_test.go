package patch

import (
	"reflect"
	"testing"
)

func fileLines() []string {
	return []string{"l1\n", "l2\n", "l3\n", "l4\n", "l5\n"}
}

func TestApplyReplacesRanges(t *testing.T) {
	t.Parallel()

	edits := map[Range]string{
		{Start: 2, End: 3}: "a\nb\nc",
		{Start: 5, End: 5}: "z",
	}
	got, err := Apply(fileLines(), edits)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []string{"l1\n", "a\n", "b\n", "c\n", "l4\n", "z\n"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Apply=%q, want %q", got, want)
	}
	// Join reproduces full file text.
	if Join(got) != "l1\na\nb\nc\nl4\nz\n" {
		t.Fatalf("Join=%q", Join(got))
	}
}

func TestApplyOrderIndependence(t *testing.T) {
	t.Parallel()

	// Map iteration order varies; result must not. Run several times to give
	// the runtime a chance to vary iteration order.
	for i := 0; i < 20; i++ {
		edits := map[Range]string{
			{Start: 1, End: 1}: "first",
			{Start: 3, End: 4}: "middle",
			{Start: 5, End: 5}: "last",
		}
		got, err := Apply(fileLines(), edits)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		want := []string{"first\n", "l2\n", "middle\n", "last\n"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Apply=%q, want %q", got, want)
		}
	}
}

func TestApplyRejectsOverlap(t *testing.T) {
	t.Parallel()

	edits := map[Range]string{
		{Start: 1, End: 3}: "a",
		{Start: 3, End: 5}: "b",
	}
	if _, err := Apply(fileLines(), edits); err == nil {
		t.Fatalf("Apply: overlapping ranges accepted")
	}
}

func TestApplyRejectsOutOfBounds(t *testing.T) {
	t.Parallel()

	if _, err := Apply(fileLines(), map[Range]string{{Start: 4, End: 9}: "x"}); err == nil {
		t.Fatalf("Apply: out-of-bounds range accepted")
	}
	if _, err := Apply(fileLines(), map[Range]string{{Start: 0, End: 2}: "x"}); err == nil {
		t.Fatalf("Apply: zero start accepted")
	}
}

func TestApplyLeavesInputUntouched(t *testing.T) {
	t.Parallel()

	in := fileLines()
	if _, err := Apply(in, map[Range]string{{Start: 1, End: 5}: "only"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !reflect.DeepEqual(in, fileLines()) {
		t.Fatalf("input mutated: %q", in)
	}
}

func TestSplitLines(t *testing.T) {
	t.Parallel()

	if got := SplitLines(""); got != nil {
		t.Fatalf("SplitLines(empty)=%q", got)
	}
	if got := SplitLines("a\nb\n"); !reflect.DeepEqual(got, []string{"a\n", "b\n"}) {
		t.Fatalf("SplitLines trailing newline=%q", got)
	}
	if got := SplitLines("a\nb"); !reflect.DeepEqual(got, []string{"a\n", "b\n"}) {
		t.Fatalf("SplitLines no trailing newline=%q", got)
	}
}
