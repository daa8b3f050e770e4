package progress

import (
	"fmt"
	"strings"
)

// Token is one progress update from a running job. Fraction is in [0,1];
// zero means the producer did not report one.
type Token struct {
	Text     string
	Stage    string
	Fraction float64
}

// Render is the text shown in the chat for the token.
func (t Token) Render() string {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		text = t.Stage
	}
	if t.Fraction > 0 && t.Fraction <= 1 {
		return fmt.Sprintf("%s (%d%%)", text, int(t.Fraction*100))
	}
	return text
}

// Sink accepts tokens from a running job. Report never blocks.
type Sink interface {
	Report(t Token)
}

// Discard drops every token.
var Discard Sink = discard{}

type discard struct{}

func (discard) Report(Token) {}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Token)

func (f SinkFunc) Report(t Token) { f(t) }
