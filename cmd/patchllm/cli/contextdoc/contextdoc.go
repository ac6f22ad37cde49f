// Package contextdoc assembles resolved files into the size-bounded
// document sent alongside an instruction to the model, and round-trips
// documents through an export format for offline workflows.
package contextdoc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/patchllm/cli/cmd/patchllm/cli/scope"
)

// Document is an ordered sequence of resolved files plus the bookkeeping
// produced while assembling them.
type Document struct {
	Files []scope.ResolvedFile `json:"files"`

	// Size is the total content bytes of included files.
	Size int `json:"size"`

	// Warnings records every drop and truncation, plus anything the
	// secret scan flagged. Assembly never fails; it degrades here.
	Warnings []string `json:"warnings,omitempty"`
}

// Assembler builds Documents under a byte budget.
type Assembler struct {
	// Budget caps total content bytes. Zero means unbounded.
	Budget int
}

// Build packages files into a Document. When the budget would be exceeded,
// the lowest-priority files are truncated or dropped with a warning:
// priority is resolution order, except search-derived files rank among
// themselves by match count, most matches first.
func (a *Assembler) Build(files []scope.ResolvedFile) *Document {
	files = scope.Dedupe(files)
	doc := &Document{}

	order := priorityOrder(files)
	keep := make(map[int][]byte, len(files))
	remaining := a.Budget
	truncated := false

	for _, idx := range order {
		f := files[idx]
		size := len(f.Content)
		switch {
		case a.Budget <= 0 || size <= remaining:
			keep[idx] = f.Content
			if a.Budget > 0 {
				remaining -= size
			}
		case remaining > 0 && !truncated:
			cut := truncateAtLine(f.Content, remaining)
			keep[idx] = cut
			remaining = 0
			truncated = true
			doc.Warnings = append(doc.Warnings,
				fmt.Sprintf("truncated %s from %d to %d bytes to fit context budget", f.Path, size, len(cut)))
		default:
			doc.Warnings = append(doc.Warnings,
				fmt.Sprintf("dropped %s (%d bytes): context budget exhausted", f.Path, size))
		}
	}

	for i, f := range files {
		content, ok := keep[i]
		if !ok {
			continue
		}
		f.Content = content
		f.Hash = scope.HashContent(content)
		f.Order = len(doc.Files)
		doc.Files = append(doc.Files, f)
		doc.Size += len(content)
	}
	return doc
}

// priorityOrder returns file indices from highest to lowest keep-priority.
func priorityOrder(files []scope.ResolvedFile) []int {
	order := make([]int, len(files))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ma, mb := len(files[order[a]].MatchedLines), len(files[order[b]].MatchedLines)
		if ma != mb {
			return ma > mb
		}
		return order[a] < order[b]
	})
	return order
}

// truncateAtLine cuts content to at most limit bytes, backing up to the
// previous newline so the document never ends mid-line.
func truncateAtLine(content []byte, limit int) []byte {
	if limit >= len(content) {
		return content
	}
	cut := content[:limit]
	if i := strings.LastIndexByte(string(cut), '\n'); i > 0 {
		cut = cut[:i+1]
	}
	return cut
}

// Render produces the textual document sent to the model: a source-tree
// outline followed by one fenced block per file. This layout is the wire
// format the model is prompted to echo back in its edits.
func (d *Document) Render() string {
	var b strings.Builder
	b.WriteString("Source Tree:\n------------\n```\n")
	b.WriteString(d.SourceTree())
	b.WriteString("\n```\n\nRelevant Files:\n---------------\n")
	for _, f := range d.Files {
		fmt.Fprintf(&b, "<file_path:%s>\n```\n%s\n```\n\n", f.Path, strings.TrimRight(string(f.Content), "\n"))
	}
	return b.String()
}

// SourceTree renders the included paths as an indented tree outline.
func (d *Document) SourceTree() string {
	if len(d.Files) == 0 {
		return "(no files)"
	}
	type node struct {
		children map[string]*node
		order    []string
	}
	root := &node{children: map[string]*node{}}
	for _, f := range d.Files {
		cur := root
		for _, part := range strings.Split(f.Path, "/") {
			child, ok := cur.children[part]
			if !ok {
				child = &node{children: map[string]*node{}}
				cur.children[part] = child
				cur.order = append(cur.order, part)
			}
			cur = child
		}
	}

	var lines []string
	var walk func(n *node, indent string)
	walk = func(n *node, indent string) {
		names := append([]string{}, n.order...)
		sort.SliceStable(names, func(i, j int) bool {
			di, dj := len(n.children[names[i]].children) > 0, len(n.children[names[j]].children) > 0
			if di != dj {
				return di
			}
			return names[i] < names[j]
		})
		for i, name := range names {
			connector := "├── "
			childIndent := indent + "│   "
			if i == len(names)-1 {
				connector = "└── "
				childIndent = indent + "    "
			}
			lines = append(lines, indent+connector+name)
			walk(n.children[name], childIndent)
		}
	}
	walk(root, "")
	return strings.Join(lines, "\n")
}
