package text

import (
	"regexp"
	"strings"
)

// Regex patterns for pasted text cleanup.
const (
	blankLinesRegexPattern  = `\n[ \t]*(?:\n[ \t]*)+`
	inlineSpaceRegexPattern = `[ \t\f\v]+`
)

// Punctuation and formatting constants.
const (
	emDash         = "—"
	enDash         = "–"
	figureDash     = "‒"
	ellipsis       = "..."
	ellipsisChar   = "…"
	carriageReturn = "\r\n"
	lineFeed       = "\n"
	nonBreaking    = "\u00a0"
)

// Normalizer cleans up text pasted from documents or web pages so paragraph
// boundaries survive chunking.
type Normalizer struct {
	blankLinesPattern  *regexp.Regexp
	inlineSpacePattern *regexp.Regexp
	punctuation        *strings.Replacer
}

// NewNormalizer creates a Normalizer with precompiled patterns.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		blankLinesPattern:  regexp.MustCompile(blankLinesRegexPattern),
		inlineSpacePattern: regexp.MustCompile(inlineSpaceRegexPattern),
		punctuation: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			nonBreaking, " ",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize collapses runs of blank lines into a single paragraph break,
// collapses inline whitespace, trims every line and replaces typographic
// quotes and dashes with their ASCII forms.
func (n *Normalizer) Normalize(input string) string {
	if input == "" {
		return input
	}

	normalized := strings.ReplaceAll(input, carriageReturn, lineFeed)
	normalized = n.punctuation.Replace(normalized)
	normalized = n.inlineSpacePattern.ReplaceAllString(normalized, " ")

	lines := strings.Split(normalized, lineFeed)
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	normalized = strings.Join(lines, lineFeed)
	normalized = n.blankLinesPattern.ReplaceAllString(normalized, ParagraphSeparator)

	return strings.TrimSpace(normalized)
}
