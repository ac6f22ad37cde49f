package patch

// Locate finds where a hunk's original side fits in fileLines. It is a
// pure function so placement stays unit-testable without a working tree.
//
// The declared position (hint, 0-based) is tried first with an exact
// match, then positions spiral outward from the hint. A candidate
// placement may mismatch up to fuzz context lines; removed lines must
// always match exactly. Returns the 0-based placement index and whether
// any placement within tolerance was found.
func Locate(fileLines []string, h Hunk, hint, fuzz int) (int, bool) {
	side := h.OriginalSide()
	if len(side) == 0 {
		// Pure insertion: place at the hint, clamped to the file bounds.
		return clamp(hint, 0, len(fileLines)), true
	}

	limit := len(fileLines) - len(side)
	if limit < 0 {
		return 0, false
	}
	hint = clamp(hint, 0, limit)

	// Exact placement at the hint wins before any fuzzy search.
	if mismatches(fileLines, side, hint) == 0 {
		return hint, true
	}

	bestIdx, bestCost := -1, fuzz+1
	for delta := 0; delta <= max(hint, limit-hint); delta++ {
		for _, idx := range []int{hint - delta, hint + delta} {
			if idx < 0 || idx > limit {
				continue
			}
			cost := mismatches(fileLines, side, idx)
			if cost < bestCost {
				bestIdx, bestCost = idx, cost
				if cost == 0 {
					return bestIdx, true
				}
			}
		}
	}
	if bestCost <= fuzz {
		return bestIdx, true
	}
	return 0, false
}

// mismatches counts context-line mismatches for placing side at idx.
// A removed-line mismatch disqualifies the placement entirely.
func mismatches(fileLines []string, side []Line, idx int) int {
	const reject = 1 << 20
	cost := 0
	for i, l := range side {
		if fileLines[idx+i] == l.Text {
			continue
		}
		if l.Kind == LineRemove {
			return reject
		}
		cost++
	}
	return cost
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
