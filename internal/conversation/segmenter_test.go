package conversation

import (
	"reflect"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{"blank", "   \n", []string{}},
		{"no terminal", "Hello there", []string{"Hello there"}},
		{"terminal at end", "Hello there.", []string{"Hello there."}},
		{"two and a tail", "Hi there. How are you? I'm", []string{"Hi there.", "How are you?", "I'm"}},
		{"trailing whitespace", "One! Two? ", []string{"One!", "Two?"}},
		{"no space after period", "Version 1.5 is out. Yes", []string{"Version 1.5 is out.", "Yes"}},
		{"ellipsis", "Wait... what? ok", []string{"Wait...", "what?", "ok"}},
		{"full width", "你好。 今天好吗？ 很好！ 嗯", []string{"你好。", "今天好吗？", "很好！", "嗯"}},
		{"newline separator", "Line one.\nLine two.", []string{"Line one.", "Line two."}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitSentences(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSentenceBufferCommitsAllButLast(t *testing.T) {
	var b sentenceBuffer
	final := b.Push("Hi there. How are you? I'm")
	want := []string{"Hi there.", "How are you?"}
	if !reflect.DeepEqual(final, want) {
		t.Fatalf("Push returned %q, want %q", final, want)
	}
	if b.pending != "I'm" {
		t.Errorf("Expected pending %q, got %q", "I'm", b.pending)
	}
	if rest := b.Flush(); rest != "I'm" {
		t.Errorf("Flush = %q", rest)
	}
}

func TestSentenceBufferKeepsJoinWhitespace(t *testing.T) {
	var b sentenceBuffer
	var committed []string
	for _, d := range []string{"Hi", " there. ", "How", " are", " you? ", "Fine"} {
		committed = append(committed, b.Push(d)...)
	}
	committed = append(committed, b.Flush())

	want := []string{"Hi there.", "How are you?", "Fine"}
	if !reflect.DeepEqual(committed, want) {
		t.Errorf("Committed %q, want %q", committed, want)
	}
}

func TestSentenceBufferNeverRepeats(t *testing.T) {
	var b sentenceBuffer
	seen := map[string]int{}
	text := "A. B. C. D"
	for _, r := range text {
		for _, s := range b.Push(string(r)) {
			seen[s]++
		}
	}
	seen[b.Flush()]++

	for _, s := range []string{"A.", "B.", "C.", "D"} {
		if seen[s] != 1 {
			t.Errorf("Segment %q committed %d times", s, seen[s])
		}
	}
}
