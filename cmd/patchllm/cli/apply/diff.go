package apply

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffLines computes a line diff between old and new content, returning
// added/removed line counts and a +/- rendering for review.
func diffLines(oldText, newText string) (added, removed int, rendered string) {
	if oldText == newText {
		return 0, 0, ""
	}

	dmp := diffmatchpatch.New()
	oldChars, newChars, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(oldChars, newChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var b strings.Builder
	for _, d := range diffs {
		lines := splitDiffText(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += len(lines)
			writeLines(&b, "+", lines)
		case diffmatchpatch.DiffDelete:
			removed += len(lines)
			writeLines(&b, "-", lines)
		case diffmatchpatch.DiffEqual:
			writeLines(&b, " ", lines)
		}
	}
	return added, removed, b.String()
}

func splitDiffText(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func writeLines(b *strings.Builder, prefix string, lines []string) {
	for _, l := range lines {
		b.WriteString(prefix)
		b.WriteString(l)
		b.WriteByte('\n')
	}
}
