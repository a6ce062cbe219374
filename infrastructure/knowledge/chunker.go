package knowledge

import (
	"strings"
)

// Section is a heading-delimited span of a markdown document.
type Section struct {
	// Headings is the path of headings enclosing the section, outermost
	// first.
	Headings []string
	Text     string
}

// SplitMarkdown splits a markdown document at ATX headings ("#" through
// "######"). Each section starts with its heading line and runs until the
// next heading. Headings inside fenced code blocks are ignored and blank
// sections are dropped.
func SplitMarkdown(doc string) []Section {
	var (
		sections []Section
		path     []string
		current  []string
		inFence  bool
		fence    string
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(current, "\n"))
		if text != "" {
			sections = append(sections, Section{Headings: append([]string(nil), path...), Text: text})
		}
		current = current[:0]
	}

	for _, line := range strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)

		if marker, ok := fenceMarker(trimmed); ok {
			switch {
			case !inFence:
				inFence, fence = true, marker
			case strings.HasPrefix(trimmed, fence):
				inFence = false
			}
			current = append(current, line)
			continue
		}

		if level, title, ok := parseHeading(trimmed); ok && !inFence {
			flush()
			if level-1 < len(path) {
				path = path[:level-1]
			}
			for len(path) < level-1 {
				path = append(path, "")
			}
			path = append(path, title)
		}
		current = append(current, line)
	}
	flush()

	return sections
}

func fenceMarker(line string) (string, bool) {
	for _, m := range []string{"```", "~~~"} {
		if strings.HasPrefix(line, m) {
			return m, true
		}
	}
	return "", false
}

func parseHeading(line string) (int, string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, "", false
	}
	if level < len(line) && line[level] != ' ' && line[level] != '\t' {
		return 0, "", false
	}
	title := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(line[level:]), "#"))
	return level, title, true
}
