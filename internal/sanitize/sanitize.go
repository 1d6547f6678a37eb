// Package sanitize cleans free text in persona profiles received from
// files, the HTTP API or MCP clients. Persona names and attributes end up
// in DOT labels, HTML views and tool output shown to agents, so control
// characters, markup and code fences are stripped before a run.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nvandessel/viralsim/internal/models"
)

// MaxTextLength is the maximum length of an attribute value, in runes.
const MaxTextLength = 500

// MaxNameLength is the maximum length of a persona name, in runes.
const MaxNameLength = 80

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reMarkdownHeading matches markdown headings at the start of a line (# , ## , etc.).
	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)

	// reHorizontalRule matches markdown horizontal rules (---, ***, ___) at the start of a line.
	reHorizontalRule = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)

	reTripleBacktick = regexp.MustCompile("```+")

	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)

	reWhitespace = regexp.MustCompile(`\s+`)
)

// Text sanitizes multi-line free text.
//
// The pipeline runs in this order:
//  1. Strip null bytes and ASCII control characters (except \n, \t)
//  2. Strip XML/HTML tags
//  3. Replace markdown headings with list markers
//  4. Remove markdown horizontal rules
//  5. Collapse triple backticks to single backtick
//  6. Collapse excessive newlines (3+ -> 2)
//  7. Trim leading/trailing whitespace
//  8. Truncate to MaxTextLength
func Text(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input, true)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "- ")
	s = reHorizontalRule.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	return truncate(s, MaxTextLength)
}

// Name sanitizes a single-line display name: control characters, tags and
// backticks are removed, whitespace runs collapse to one space and the
// result is cut to MaxNameLength.
func Name(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input, false)
	s = reXMLTag.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "`", "")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return truncate(s, MaxNameLength)
}

// Persona returns a copy of p with its name and string attributes
// sanitized. Ids and triggers are left alone; they must keep matching the
// telemetry.
func Persona(p models.PersonaProfile) models.PersonaProfile {
	p.Name = Name(p.Name)
	if len(p.Attributes) > 0 {
		attrs := make(map[string]interface{}, len(p.Attributes))
		for k, v := range p.Attributes {
			if s, ok := v.(string); ok {
				v = Text(s)
			}
			attrs[Name(k)] = v
		}
		p.Attributes = attrs
	}
	return p
}

// Personas sanitizes every persona into a new slice.
func Personas(ps []models.PersonaProfile) []models.PersonaProfile {
	if ps == nil {
		return nil
	}
	out := make([]models.PersonaProfile, len(ps))
	for i, p := range ps {
		out[i] = Persona(p)
	}
	return out
}

// stripControlChars removes ASCII control characters (0x00-0x1F, 0x7F).
// With keepLines, newline and tab survive; otherwise they become spaces.
func stripControlChars(s string, keepLines bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			if keepLines && r != '\r' {
				b.WriteRune(r)
			} else if !keepLines {
				b.WriteByte(' ')
			}
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max])) + "..."
}
