package patch

import "testing"

func hunkOf(lines ...Line) Hunk { return Hunk{Lines: lines} }

func TestLocate_ExactAtHint(t *testing.T) {
	file := []string{"a", "b", "c", "d"}
	h := hunkOf(Line{LineContext, "b"}, Line{LineRemove, "c"}, Line{LineAdd, "C"})

	idx, ok := Locate(file, h, 1, 0)
	if !ok || idx != 1 {
		t.Fatalf("Locate() = (%d, %v), want (1, true)", idx, ok)
	}
}

func TestLocate_RelocatesWhenFileDrifted(t *testing.T) {
	// Two lines were inserted above the hunk's declared position.
	file := []string{"new1", "new2", "a", "b", "c"}
	h := hunkOf(Line{LineContext, "a"}, Line{LineRemove, "b"}, Line{LineAdd, "B"})

	idx, ok := Locate(file, h, 0, 0)
	if !ok || idx != 2 {
		t.Fatalf("Locate() = (%d, %v), want (2, true)", idx, ok)
	}
}

func TestLocate_FuzzyContextWithinTolerance(t *testing.T) {
	file := []string{"a-changed", "b", "c"}
	h := hunkOf(Line{LineContext, "a"}, Line{LineRemove, "b"}, Line{LineContext, "c"})

	if _, ok := Locate(file, h, 0, 0); ok {
		t.Fatal("Locate() with fuzz 0 must reject a mismatched context line")
	}
	idx, ok := Locate(file, h, 0, 1)
	if !ok || idx != 0 {
		t.Fatalf("Locate() with fuzz 1 = (%d, %v), want (0, true)", idx, ok)
	}
}

func TestLocate_RemovedLineMustMatchExactly(t *testing.T) {
	file := []string{"a", "not-b", "c"}
	h := hunkOf(Line{LineContext, "a"}, Line{LineRemove, "b"}, Line{LineContext, "c"})

	if _, ok := Locate(file, h, 0, 5); ok {
		t.Fatal("Locate() must never place a hunk whose removed line differs")
	}
}

func TestLocate_PureInsertionClampsToBounds(t *testing.T) {
	file := []string{"a", "b"}
	h := hunkOf(Line{LineAdd, "x"})

	idx, ok := Locate(file, h, 99, 0)
	if !ok || idx != 2 {
		t.Fatalf("Locate() = (%d, %v), want (2, true)", idx, ok)
	}
}

func TestLocate_HunkLargerThanFile(t *testing.T) {
	file := []string{"a"}
	h := hunkOf(Line{LineContext, "a"}, Line{LineContext, "b"}, Line{LineContext, "c"})

	if _, ok := Locate(file, h, 0, 2); ok {
		t.Fatal("Locate() must fail when the original side exceeds the file")
	}
}

func TestLocate_PrefersNearestPlacement(t *testing.T) {
	// The pattern occurs twice; the one nearer the hint wins.
	file := []string{"x", "a", "b", "x", "x", "a", "b"}
	h := hunkOf(Line{LineContext, "a"}, Line{LineRemove, "b"})

	idx, ok := Locate(file, h, 4, 0)
	if !ok || idx != 5 {
		t.Fatalf("Locate() = (%d, %v), want (5, true)", idx, ok)
	}
}
