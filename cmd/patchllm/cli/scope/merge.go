package scope

// Union merges a newly resolved file list into an existing one. Order is
// stable first-seen: existing files keep their positions, new paths append
// in their resolved order. On an exact path collision the newly resolved
// content wins, since it was read more recently and reflects the current
// working tree.
func Union(existing, incoming []ResolvedFile) []ResolvedFile {
	byPath := make(map[string]int, len(existing))
	out := make([]ResolvedFile, len(existing))
	copy(out, existing)
	for i, f := range out {
		byPath[f.Path] = i
	}

	for _, f := range incoming {
		if i, ok := byPath[f.Path]; ok {
			order := out[i].Order
			out[i] = f
			out[i].Order = order
			continue
		}
		f.Order = len(out)
		byPath[f.Path] = len(out)
		out = append(out, f)
	}
	return out
}

// Dedupe removes duplicate canonical paths from a single resolution,
// keeping the first occurrence. Resolutions produced by this package are
// already unique; this guards merged or imported lists.
func Dedupe(files []ResolvedFile) []ResolvedFile {
	seen := make(map[string]bool, len(files))
	out := files[:0]
	for _, f := range files {
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		f.Order = len(out)
		out = append(out, f)
	}
	return out
}
