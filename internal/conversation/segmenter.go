package conversation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func isSentenceTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '？', '！':
		return true
	}
	return false
}

type span struct{ start, end int }

// sentenceSpans returns byte ranges of the non-blank segments of text. A
// segment ends at terminal punctuation that is followed by whitespace.
func sentenceSpans(text string) []span {
	var spans []span
	add := func(s, e int) {
		if strings.TrimSpace(text[s:e]) != "" {
			spans = append(spans, span{s, e})
		}
	}

	start := 0
	for i, r := range text {
		if i < start || !isSentenceTerminal(r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		next, size := utf8.DecodeRuneInString(text[end:])
		if size == 0 || !unicode.IsSpace(next) {
			continue
		}
		add(start, end)

		j := end
		for j < len(text) {
			r, size := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(r) {
				break
			}
			j += size
		}
		start = j
	}
	if start < len(text) {
		add(start, len(text))
	}
	return spans
}

// SplitSentences splits text into trimmed sentence segments. Of the N
// segments returned only the first N-1 are known to be complete; the last
// may still grow when more text arrives.
func SplitSentences(text string) []string {
	spans := sentenceSpans(text)
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, strings.TrimSpace(text[sp.start:sp.end]))
	}
	return out
}

// sentenceBuffer holds streamed text that has not been committed to speech.
type sentenceBuffer struct {
	pending string
}

// Push appends delta and returns the segments that became final.
func (b *sentenceBuffer) Push(delta string) []string {
	b.pending += delta
	spans := sentenceSpans(b.pending)
	if len(spans) < 2 {
		return nil
	}

	final := make([]string, 0, len(spans)-1)
	for _, sp := range spans[:len(spans)-1] {
		final = append(final, strings.TrimSpace(b.pending[sp.start:sp.end]))
	}
	// Keep the provisional segment raw so whitespace at the join survives.
	b.pending = b.pending[spans[len(spans)-1].start:]
	return final
}

// Flush returns the trimmed remainder and empties the buffer.
func (b *sentenceBuffer) Flush() string {
	rest := strings.TrimSpace(b.pending)
	b.pending = ""
	return rest
}
