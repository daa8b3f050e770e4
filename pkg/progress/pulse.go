package progress

import "strings"

const maxDots = 3

// PulseRenderer cycles through a list of step labels with an animated
// trailing dot count, for providers that report nothing while they work.
type PulseRenderer struct {
	steps []string
	step  int
	dots  int
}

func NewPulseRenderer(steps ...string) *PulseRenderer {
	if len(steps) == 0 {
		steps = []string{"Working"}
	}
	return &PulseRenderer{steps: steps}
}

// Next returns the frame to show and advances the animation.
func (p *PulseRenderer) Next() string {
	frame := p.steps[p.step] + strings.Repeat(".", p.dots)
	p.dots++
	if p.dots > maxDots {
		p.dots = 0
		p.step = (p.step + 1) % len(p.steps)
	}
	return frame
}
