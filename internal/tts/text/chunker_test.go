package text_test

import (
	"strings"
	"testing"

	"github.com/book-expert/narrator/internal/tts/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStory = `Once upon a time there was a lighthouse keeper who talked to the sea.

Every night the sea answered with a different story, and every morning he wrote it down.

   The villagers thought he was mad.   Then the storms came.`

func TestChunk_InvalidArguments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		opts  text.Options
	}{
		{name: "empty text", input: "", opts: text.Options{Budget: 10}},
		{name: "zero budget", input: "hello", opts: text.Options{Budget: 0}},
		{name: "negative budget", input: "hello", opts: text.Options{Budget: -3}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			fragments, err := text.Chunk(testCase.input, testCase.opts)
			require.ErrorIs(t, err, text.ErrInvalidArgument)
			assert.Nil(t, fragments)
		})
	}
}

func TestChunk_WhitespaceOnlyIsEmptyResult(t *testing.T) {
	t.Parallel()

	for _, strategy := range []text.Strategy{text.Words, text.Paragraphs} {
		_, err := text.Chunk(" \n\n\t \n", text.Options{Budget: 100, Strategy: strategy})
		require.ErrorIs(t, err, text.ErrEmptyResult)
	}
}

func TestChunk_TwoShortParagraphsFitOneFragment(t *testing.T) {
	t.Parallel()

	input := "The fox ran.\n\nThe hound followed it home."

	fragments, err := text.Chunk(input, text.Options{Budget: 4500, Unit: text.Chars, Strategy: text.Paragraphs})
	require.NoError(t, err)
	require.Len(t, fragments, 1)

	assert.Equal(t, 0, fragments[0].Index)
	assert.Equal(t, "The fox ran.\n\nThe hound followed it home.", fragments[0].Content)
	assert.Equal(t, len(input), fragments[0].Size)
}

func TestChunk_ParagraphsAccumulateUnderBudget(t *testing.T) {
	t.Parallel()

	paragraphs := []string{
		strings.Repeat("a", 2000),
		strings.Repeat("b", 2000),
		strings.Repeat("c", 2000),
	}
	input := strings.Join(paragraphs, "\n\n")

	fragments, err := text.Chunk(input, text.Options{Budget: 4500, Unit: text.Chars, Strategy: text.Paragraphs})
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	assert.Equal(t, paragraphs[0]+"\n\n"+paragraphs[1], fragments[0].Content)
	assert.Equal(t, 4002, fragments[0].Size)
	assert.Equal(t, paragraphs[2], fragments[1].Content)
	assert.Equal(t, 1, fragments[1].Index)
}

func TestChunk_OversizedWordBecomesOwnFragment(t *testing.T) {
	t.Parallel()

	word := strings.Repeat("x", 6000)

	fragments, err := text.Chunk(word, text.Options{Budget: 5000, Unit: text.Bytes, Strategy: text.Words})
	require.NoError(t, err)
	require.Len(t, fragments, 1)

	assert.Equal(t, word, fragments[0].Content)
	assert.Equal(t, 6000, fragments[0].Size)
}

func TestChunk_OversizedWordBetweenSmallWords(t *testing.T) {
	t.Parallel()

	giant := strings.Repeat("z", 30)

	fragments, err := text.Chunk("one two "+giant+" three", text.Options{Budget: 10, Strategy: text.Words})
	require.NoError(t, err)

	contents := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		contents = append(contents, fragment.Content)
	}

	assert.Equal(t, []string{"one two", giant, "three"}, contents)
}

func TestChunk_BytesAndCharsDiffer(t *testing.T) {
	t.Parallel()

	// Each word is 4 runes but 7 bytes.
	input := "ñañá ñañá ñañá"

	byChars, err := text.Chunk(input, text.Options{Budget: 9, Unit: text.Chars})
	require.NoError(t, err)
	assert.Len(t, byChars, 2)
	assert.Equal(t, 9, byChars[0].Size)

	byBytes, err := text.Chunk(input, text.Options{Budget: 9, Unit: text.Bytes})
	require.NoError(t, err)
	assert.Len(t, byBytes, 3)
	assert.Equal(t, 7, byBytes[0].Size)
}

func TestChunk_MarkupTagIsAtomic(t *testing.T) {
	t.Parallel()

	input := `Pay <say-as interpret-as="currency" language="en-US">$42.01</say-as> today`

	fragments, err := text.Chunk(input, text.Options{Budget: 12, Strategy: text.Words})
	require.NoError(t, err)

	for _, fragment := range fragments {
		assert.Equal(t, strings.Count(fragment.Content, "<"), strings.Count(fragment.Content, ">"),
			"fragment %d splits a tag: %q", fragment.Index, fragment.Content)
	}

	assert.Equal(t, input, text.Join(fragments, text.Words))
}

func TestChunk_StrayAngleBracketIsPlainText(t *testing.T) {
	t.Parallel()

	input := "If 3 < 5 " + strings.Repeat("word ", 400) + "then -> done."

	fragments, err := text.Chunk(input, text.Options{Budget: 100, Unit: text.Bytes, Strategy: text.Words})
	require.NoError(t, err)
	require.Greater(t, len(fragments), 3)

	for _, fragment := range fragments {
		assert.LessOrEqual(t, fragment.Size, 100, "fragment %d: %q", fragment.Index, fragment.Content)
	}

	assert.Equal(t, strings.Join(strings.Fields(input), " "), text.Join(fragments, text.Words))
}

func TestChunk_UnclosedTagLikeTextIsPlainText(t *testing.T) {
	t.Parallel()

	input := "a <b c <d e> f"

	fragments, err := text.Chunk(input, text.Options{Budget: 3, Unit: text.Bytes, Strategy: text.Words})
	require.NoError(t, err)

	contents := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		contents = append(contents, fragment.Content)
	}

	assert.Equal(t, []string{"a", "<b", "c", "<d e>", "f"}, contents)
}

func TestChunk_ExpandMeasuresWireForm(t *testing.T) {
	t.Parallel()

	escape := strings.NewReplacer("'", "&apos;").Replace
	input := strings.TrimSpace(strings.Repeat("it's ", 10))

	plain, err := text.Chunk(input, text.Options{Budget: 20, Strategy: text.Words})
	require.NoError(t, err)

	escaped, err := text.Chunk(input, text.Options{Budget: 20, Strategy: text.Words, Expand: escape})
	require.NoError(t, err)
	assert.Greater(t, len(escaped), len(plain))

	for _, fragment := range escaped {
		assert.Equal(t, len(escape(fragment.Content)), fragment.Size)
		assert.LessOrEqual(t, fragment.Size, 20)
	}

	assert.Equal(t, input, text.Join(escaped, text.Words))
}

func TestChunk_Properties(t *testing.T) {
	t.Parallel()

	budgets := []int{1, 7, 20, 64, 200, 5000}
	strategies := []text.Strategy{text.Words, text.Paragraphs}
	units := []text.Unit{text.Bytes, text.Chars}

	for _, strategy := range strategies {
		for _, unit := range units {
			for _, budget := range budgets {
				opts := text.Options{Budget: budget, Unit: unit, Strategy: strategy}

				fragments, err := text.Chunk(sampleStory, opts)
				require.NoError(t, err)

				assertFragmentInvariants(t, fragments, opts)
				assertRoundTrip(t, fragments, opts)
				assertIdempotent(t, fragments, opts)
			}
		}
	}
}

func assertFragmentInvariants(t *testing.T, fragments []text.Fragment, opts text.Options) {
	t.Helper()

	for position, fragment := range fragments {
		assert.Equal(t, position, fragment.Index)
		assert.NotEmpty(t, fragment.Content)
		assert.Equal(t, strings.TrimSpace(fragment.Content), fragment.Content)
		assert.Equal(t, text.Measure(fragment.Content, opts.Unit), fragment.Size)

		if fragment.Size > opts.Budget {
			assert.NotContains(t, fragment.Content, opts.Strategy.Separator(),
				"oversized fragment %d must hold a single unit", fragment.Index)
		}
	}
}

func assertRoundTrip(t *testing.T, fragments []text.Fragment, opts text.Options) {
	t.Helper()

	joined := text.Join(fragments, opts.Strategy)
	assert.Equal(t, strings.Fields(sampleStory), strings.Fields(joined))
}

func assertIdempotent(t *testing.T, fragments []text.Fragment, opts text.Options) {
	t.Helper()

	again, err := text.Chunk(text.Join(fragments, opts.Strategy), opts)
	require.NoError(t, err)
	assert.Equal(t, fragments, again)
}

func TestParseOptions(t *testing.T) {
	t.Parallel()

	unit, err := text.ParseUnit("chars")
	require.NoError(t, err)
	assert.Equal(t, text.Chars, unit)

	strategy, err := text.ParseStrategy("Paragraphs")
	require.NoError(t, err)
	assert.Equal(t, text.Paragraphs, strategy)

	_, err = text.ParseUnit("lines")
	require.ErrorIs(t, err, text.ErrInvalidArgument)

	_, err = text.ParseStrategy("sentences")
	require.ErrorIs(t, err, text.ErrInvalidArgument)
}
