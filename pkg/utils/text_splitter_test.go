package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplitMessageShortTextIsUntouched(t *testing.T) {
	assert.Equal(t, []string{"hello"}, SplitMessage("hello", 10))
	assert.Equal(t, []string{""}, SplitMessage("", 10))
}

func TestSplitMessagePrefersLineBreaks(t *testing.T) {
	text := "first line\nsecond line\nthird"
	chunks := SplitMessage(text, 15)
	assert.Equal(t, []string{"first line", "second line", "third"}, chunks)
}

func TestSplitMessageFallsBackToSpaces(t *testing.T) {
	chunks := SplitMessage("alpha beta gamma delta", 12)
	assert.Equal(t, []string{"alpha beta", "gamma delta"}, chunks)
}

func TestSplitMessageHardCutAndRunes(t *testing.T) {
	text := strings.Repeat("ж", 25)
	chunks := SplitMessage(text, 10)
	assert.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}
