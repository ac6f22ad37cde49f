package patch

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/patchllm/cli/cmd/patchllm/cli/paths"
)

// Markers are matched case-insensitively with surrounding-whitespace
// tolerance; models are sloppy about both.
var (
	fileMarkerRe   = regexp.MustCompile(`(?i)^\s*<file_path:\s*([^>]+?)\s*>\s*$`)
	deleteMarkerRe = regexp.MustCompile(`(?i)^\s*<delete_file:\s*([^>]+?)\s*>\s*$`)
	fenceOpenRe    = regexp.MustCompile("^\\s*```([A-Za-z0-9_+-]*)\\s*$")
	fenceCloseRe   = regexp.MustCompile("^\\s*```\\s*$")
	hunkHeaderRe   = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
)

// Parser turns raw response text into a Set. Root anchors and validates
// operation paths; targets escaping it are rejected as format errors.
type Parser struct {
	Root string
}

// Parse scans the response for file blocks, diff blocks, and delete
// markers, in order of appearance. The returned operations are
// self-contained; responseID records their provenance.
func (p *Parser) Parse(responseID, response string) (*Set, error) {
	lines := strings.Split(response, "\n")
	set := &Set{ResponseID: responseID}

	for i := 0; i < len(lines); i++ {
		if m := deleteMarkerRe.FindStringSubmatch(lines[i]); m != nil {
			rel, err := p.normalizePath(m[1], i+1)
			if err != nil {
				return nil, err
			}
			set.Ops = append(set.Ops, Operation{Kind: OpDelete, Path: rel})
			continue
		}

		m := fileMarkerRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		rel, err := p.normalizePath(m[1], i+1)
		if err != nil {
			return nil, err
		}

		// The fence may be separated from the marker by blank lines.
		j := i + 1
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		if j >= len(lines) || !fenceOpenRe.MatchString(lines[j]) {
			return nil, &FormatError{Line: i + 1, Reason: "file marker not followed by a fenced block"}
		}
		lang := fenceOpenRe.FindStringSubmatch(lines[j])[1]

		body, end, ok := collectFence(lines, j+1)
		if !ok {
			return nil, &FormatError{Line: j + 1, Reason: "unterminated fenced block for " + rel}
		}

		if strings.EqualFold(lang, "diff") || looksLikeHunks(body) {
			hunks, err := parseHunks(body, j+1)
			if err != nil {
				return nil, err
			}
			set.Ops = append(set.Ops, Operation{Kind: OpHunks, Path: rel, Hunks: hunks})
		} else {
			content := strings.Join(body, "\n")
			if !strings.HasSuffix(content, "\n") {
				content += "\n"
			}
			kind := OpReplace
			if _, err := os.Stat(p.abs(rel)); os.IsNotExist(err) {
				kind = OpCreate
			}
			set.Ops = append(set.Ops, Operation{Kind: kind, Path: rel, Content: content})
		}
		i = end
	}

	if len(set.Ops) == 0 {
		return nil, ErrNoOperations
	}
	return set, nil
}

func (p *Parser) normalizePath(raw string, line int) (string, error) {
	rel, err := paths.Normalize(p.Root, strings.TrimSpace(raw))
	if err != nil {
		return "", &FormatError{Line: line, Reason: "path escapes working tree: " + raw}
	}
	return rel, nil
}

func (p *Parser) abs(rel string) string {
	abs, err := paths.Within(p.Root, rel)
	if err != nil {
		return rel
	}
	return abs
}

// collectFence gathers lines until the closing fence, returning the body,
// the index of the closing line, and whether the fence was terminated.
func collectFence(lines []string, start int) ([]string, int, bool) {
	for i := start; i < len(lines); i++ {
		if fenceCloseRe.MatchString(lines[i]) {
			return lines[start:i], i, true
		}
	}
	return nil, 0, false
}

func looksLikeHunks(body []string) bool {
	for _, l := range body {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" || strings.HasPrefix(trimmed, "---") || strings.HasPrefix(trimmed, "+++") {
			continue
		}
		return hunkHeaderRe.MatchString(l)
	}
	return false
}

// parseHunks parses a diff block body into ordered hunks. Only structural
// well-formedness is checked here; whether the context still matches the
// file is decided at apply time.
func parseHunks(body []string, offset int) ([]Hunk, error) {
	var hunks []Hunk
	var cur *Hunk

	flush := func() {
		if cur != nil {
			hunks = append(hunks, *cur)
			cur = nil
		}
	}

	for i, raw := range body {
		lineNo := offset + i + 1
		if m := hunkHeaderRe.FindStringSubmatch(raw); m != nil {
			flush()
			cur = &Hunk{
				OrigStart: atoiDefault(m[1], 1),
				OrigLines: atoiDefault(m[2], 1),
				NewStart:  atoiDefault(m[3], 1),
				NewLines:  atoiDefault(m[4], 1),
			}
			continue
		}
		if cur == nil {
			// File header lines before the first hunk are tolerated.
			trimmed := strings.TrimSpace(raw)
			if trimmed == "" || strings.HasPrefix(trimmed, "---") || strings.HasPrefix(trimmed, "+++") {
				continue
			}
			return nil, &FormatError{Line: lineNo, Reason: "diff content before first hunk header"}
		}

		switch {
		case raw == "" || raw[0] == ' ':
			cur.Lines = append(cur.Lines, Line{Kind: LineContext, Text: strings.TrimPrefix(raw, " ")})
		case raw[0] == '+':
			cur.Lines = append(cur.Lines, Line{Kind: LineAdd, Text: raw[1:]})
		case raw[0] == '-':
			cur.Lines = append(cur.Lines, Line{Kind: LineRemove, Text: raw[1:]})
		case raw[0] == '\\':
			// "\ No newline at end of file" markers carry no content.
		default:
			return nil, &FormatError{Line: lineNo, Reason: "invalid hunk line prefix " + strconv.Quote(string(raw[0]))}
		}
	}
	flush()

	if len(hunks) == 0 {
		return nil, &FormatError{Line: offset, Reason: "diff block contains no hunks"}
	}
	return hunks, nil
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
