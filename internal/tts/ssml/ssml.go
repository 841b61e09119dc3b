// Package ssml builds the SSML documents sent to the speech service.
package ssml

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	speakOpen   = "<speak>"
	speakClose  = "</speak>"
	prosodyFmt  = `<prosody rate="%s" pitch="%s">`
	prosodyEnd  = "</prosody>"
	neutralRate = 1.0
)

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Prosody holds the rate multiplier and pitch offset in semitones.
type Prosody struct {
	Rate  float64
	Pitch float64
}

// Neutral reports whether p leaves the voice unchanged.
func (p Prosody) Neutral() bool {
	return (p.Rate == 0 || p.Rate == neutralRate) && p.Pitch == 0
}

// Escape replaces XML special characters in plain text.
func Escape(content string) string {
	return escaper.Replace(content)
}

// Wrap returns a <speak> document around content. When prosody is not
// neutral the content is wrapped in a <prosody> element. Content is
// inserted verbatim so embedded <say-as> elements keep working; call Escape
// first for untrusted plain text.
func Wrap(content string, prosody Prosody) string {
	var builder strings.Builder

	builder.WriteString(speakOpen)

	if prosody.Neutral() {
		builder.WriteString(content)
	} else {
		fmt.Fprintf(&builder, prosodyFmt, formatRate(prosody.Rate), formatPitch(prosody.Pitch))
		builder.WriteString(content)
		builder.WriteString(prosodyEnd)
	}

	builder.WriteString(speakClose)

	return builder.String()
}

// SayAs wraps content in a <say-as> element. detail is an optional format
// attribute, as in <say-as interpret-as="date" format="dmy">.
func SayAs(content, interpretAs, detail string) string {
	if detail == "" {
		return fmt.Sprintf(`<say-as interpret-as="%s">%s</say-as>`, Escape(interpretAs), content)
	}

	return fmt.Sprintf(`<say-as interpret-as="%s" format="%s">%s</say-as>`,
		Escape(interpretAs), Escape(detail), content)
}

// SayAsKinds lists the interpret-as values supported by the speech service.
func SayAsKinds() []string {
	return []string{"cardinal", "ordinal", "characters", "date", "time", "currency", "telephone", "unit", "verbatim"}
}

func formatRate(rate float64) string {
	if rate == 0 {
		rate = neutralRate
	}

	return strconv.FormatFloat(rate*100, 'f', 0, 64) + "%"
}

func formatPitch(pitch float64) string {
	value := strconv.FormatFloat(pitch, 'f', -1, 64) + "st"
	if pitch >= 0 {
		return "+" + value
	}

	return value
}
