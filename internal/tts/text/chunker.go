// Package text prepares story text for speech synthesis.
//
// It splits arbitrary input into ordered fragments that fit a synthesis
// request budget and normalizes pasted text before it is chunked.
package text

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Separators used to join fragments back together.
const (
	ParagraphSeparator = "\n\n"
	WordSeparator      = " "
)

var (
	// ErrInvalidArgument is returned for empty input or a non-positive budget.
	ErrInvalidArgument = errors.New("invalid chunking argument")
	// ErrEmptyResult is returned when the input holds no usable text.
	ErrEmptyResult = errors.New("chunking produced no fragments")
)

// maxTagBytes bounds how far a markup tag may reach before a '<' is
// treated as ordinary text.
const maxTagBytes = 512

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
	markupTag      = regexp.MustCompile(`^<[A-Za-z/!][^<>]*>`)
)

// Unit selects how fragment sizes are measured.
type Unit int

const (
	// Bytes measures UTF-8 encoded length.
	Bytes Unit = iota
	// Chars measures rune count.
	Chars
)

func (u Unit) String() string {
	if u == Chars {
		return "chars"
	}

	return "bytes"
}

// Strategy selects the atomic unit that fragments are built from.
type Strategy int

const (
	// Words accumulates whitespace-delimited tokens.
	Words Strategy = iota
	// Paragraphs accumulates blank-line separated paragraphs.
	Paragraphs
)

func (s Strategy) String() string {
	if s == Paragraphs {
		return "paragraphs"
	}

	return "words"
}

// Options controls Chunk.
type Options struct {
	Budget   int
	Unit     Unit
	Strategy Strategy
	// Expand, when set, returns the form a unit takes in the request body,
	// such as its escaped markup. Sizes are measured on that form.
	Expand func(string) string
}

func (o Options) measure(s string) int {
	if o.Expand != nil {
		s = o.Expand(s)
	}

	return Measure(s, o.Unit)
}

// Fragment is one ordered piece of the input text.
type Fragment struct {
	Index   int
	Content string
	Size    int
}

// Measure returns the size of s under unit.
func Measure(s string, unit Unit) int {
	if unit == Chars {
		return utf8.RuneCountInString(s)
	}

	return len(s)
}

// ParseUnit converts a configuration value into a Unit.
func ParseUnit(value string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "bytes":
		return Bytes, nil
	case "chars", "characters":
		return Chars, nil
	default:
		return Bytes, fmt.Errorf("%w: unknown unit %q", ErrInvalidArgument, value)
	}
}

// ParseStrategy converts a configuration value into a Strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "words":
		return Words, nil
	case "paragraphs":
		return Paragraphs, nil
	default:
		return Words, fmt.Errorf("%w: unknown strategy %q", ErrInvalidArgument, value)
	}
}

// Separator returns the join rule of strategy.
func (s Strategy) Separator() string {
	if s == Paragraphs {
		return ParagraphSeparator
	}

	return WordSeparator
}

// Chunk splits input into fragments whose size stays within opts.Budget.
// A single word or paragraph larger than the budget becomes its own
// oversized fragment.
func Chunk(input string, opts Options) ([]Fragment, error) {
	if input == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidArgument)
	}

	if opts.Budget <= 0 {
		return nil, fmt.Errorf("%w: budget must be positive, got %d", ErrInvalidArgument, opts.Budget)
	}

	var units []string

	if opts.Strategy == Paragraphs {
		units = splitParagraphs(input)
	} else {
		units = splitWords(input)
	}

	contents := accumulate(units, opts.Strategy.Separator(), opts)
	if len(contents) == 0 {
		return nil, ErrEmptyResult
	}

	fragments := make([]Fragment, 0, len(contents))
	for index, content := range contents {
		fragments = append(fragments, Fragment{
			Index:   index,
			Content: content,
			Size:    opts.measure(content),
		})
	}

	return fragments, nil
}

// Join concatenates fragment contents in index order with the join rule of
// strategy.
func Join(fragments []Fragment, strategy Strategy) string {
	contents := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		contents = append(contents, fragment.Content)
	}

	return strings.Join(contents, strategy.Separator())
}

func accumulate(units []string, separator string, opts Options) []string {
	var (
		contents []string
		current  strings.Builder
		size     int
	)

	separatorSize := opts.measure(separator)

	for _, unit := range units {
		unitSize := opts.measure(unit)

		if current.Len() == 0 {
			current.WriteString(unit)

			size = unitSize

			continue
		}

		if size+separatorSize+unitSize > opts.Budget {
			contents = append(contents, current.String())
			current.Reset()
			current.WriteString(unit)

			size = unitSize

			continue
		}

		current.WriteString(separator)
		current.WriteString(unit)

		size += separatorSize + unitSize
	}

	if current.Len() > 0 {
		contents = append(contents, current.String())
	}

	return contents
}

func splitParagraphs(input string) []string {
	normalized := strings.ReplaceAll(input, "\r\n", "\n")

	var paragraphs []string

	for _, paragraph := range paragraphBreak.Split(normalized, -1) {
		trimmed := strings.TrimSpace(paragraph)
		if trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return paragraphs
}

// splitWords tokenizes on whitespace but keeps a markup tag such as
// <say-as interpret-as="date"> inside a single token. A '<' that does not
// open a tag is plain text.
func splitWords(input string) []string {
	var (
		words   []string
		current strings.Builder
	)

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for offset := 0; offset < len(input); {
		char, width := utf8.DecodeRuneInString(input[offset:])

		if char == '<' {
			tag := markupTag.FindString(input[offset:])
			if tag != "" && len(tag) <= maxTagBytes {
				current.WriteString(tag)

				offset += len(tag)

				continue
			}
		}

		if unicode.IsSpace(char) {
			flush()
		} else {
			current.WriteRune(char)
		}

		offset += width
	}

	flush()

	return words
}
