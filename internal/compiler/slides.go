package compiler

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// slideSeparator is a line consisting only of three dashes, outside fenced code.
const slideSeparator = "---"

// splitSlides cuts a Markdown body into slide sources. Fenced code blocks are
// opaque so a literal "---" inside them does not start a new slide. Empty
// slides (for example from a trailing separator) are dropped.
func splitSlides(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")

	var (
		slides  []string
		current strings.Builder
		fences  fenceTracker
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			slides = append(slides, current.String())
		}
		current.Reset()
	}

	for _, line := range strings.Split(body, "\n") {
		if !fences.inCode(line) && strings.TrimRight(line, " \t") == slideSeparator {
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()
	return slides
}

// fenceTracker follows ``` and ~~~ code fences line by line.
type fenceTracker struct {
	fence string
}

// inCode reports whether line belongs to a fenced code block, fence lines
// included.
func (f *fenceTracker) inCode(line string) bool {
	trimmed := strings.TrimSpace(line)
	if f.fence != "" {
		if strings.HasPrefix(trimmed, f.fence) {
			f.fence = ""
		}
		return true
	}
	for _, marker := range []string{"```", "~~~"} {
		if strings.HasPrefix(trimmed, marker) {
			f.fence = marker
			return true
		}
	}
	return false
}

var (
	headingPattern = regexp.MustCompile(`^#{1,6}[ \t]+(.+?)[ \t#]*$`)
	nonSlugChars   = regexp.MustCompile(`[^a-z0-9]+`)
)

// firstHeading returns the text of the first ATX heading in src outside
// fenced code, if any.
func firstHeading(src string) string {
	var fences fenceTracker
	for _, line := range strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n") {
		if fences.inCode(line) {
			continue
		}
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// slugify lowercases s, strips diacritics and collapses everything else to dashes.
func slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(folded), "-"), "-")
}

// slideIDs assigns a stable, unique anchor to each slide: the slug of its
// first heading, or its 1-based position.
func slideIDs(slides []string) []string {
	ids := make([]string, len(slides))
	seen := make(map[string]int, len(slides))
	for i, src := range slides {
		id := slugify(firstHeading(src))
		if id == "" {
			id = "slide-" + strconv.Itoa(i+1)
		}
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id = id + "-" + strconv.Itoa(n+1)
		} else {
			seen[id] = 1
		}
		ids[i] = id
	}
	return ids
}
