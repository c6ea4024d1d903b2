package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	barFilled = '█'
	barEmpty  = '░'
)

// RenderBar draws a utilization bar like "[████████░░░░]  67%". A nil
// percent means the value is unknown and renders as a muted placeholder of
// the same width, never as zero.
func RenderBar(percent *float64, width int) string {
	if width <= 0 {
		return ""
	}
	if percent == nil {
		return mutedStyle.Render("[" + strings.Repeat(" ", width) + "]    " + SymbolUnknown)
	}

	p := *percent
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	filled := int(p / 100 * float64(width))

	var sb strings.Builder
	sb.Grow(width*3 + 2)
	sb.WriteRune('[')
	for i := 0; i < width; i++ {
		if i < filled {
			sb.WriteRune(barFilled)
		} else {
			sb.WriteRune(barEmpty)
		}
	}
	sb.WriteRune(']')

	style := lipgloss.NewStyle().Foreground(thresholdColor(p))
	return style.Render(sb.String()) + fmt.Sprintf(" %3.0f%%", p)
}
