package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// RenderSparkline draws the last width percentages (0-100) as a one-line
// graph. The scale is absolute so a flat idle GPU reads as low, not as mid.
// The color follows the latest value.
func RenderSparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	top := len(sparkRunes) - 1
	var sb strings.Builder
	sb.Grow(len(data) * 3)
	for _, v := range data {
		level := int(v / 100 * float64(top))
		if level < 0 {
			level = 0
		} else if level > top {
			level = top
		}
		sb.WriteRune(sparkRunes[level])
	}

	last := data[len(data)-1]
	return lipgloss.NewStyle().Foreground(thresholdColor(last)).Render(sb.String())
}
