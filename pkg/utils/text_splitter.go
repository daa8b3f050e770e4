package utils

import "strings"

// SplitMessage splits text into chunks of at most limit runes. A chunk ends
// at the last newline, or failing that the last space, in its second half;
// otherwise the text is cut hard at limit.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := breakPoint(runes[:limit])
		chunk := strings.TrimRight(string(runes[:cut]), " \n")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
		for len(runes) > 0 && (runes[0] == '\n' || runes[0] == ' ') {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func breakPoint(window []rune) int {
	half := len(window) / 2
	for _, sep := range []rune{'\n', ' '} {
		for i := len(window) - 1; i >= half; i-- {
			if window[i] == sep {
				return i + 1
			}
		}
	}
	return len(window)
}
