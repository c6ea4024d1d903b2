// Package ui renders dozer's terminal output with Lip Gloss.
//
// # Components
//
//	RenderStatus      - Status card: header, services, performance, auto-sleep
//	RenderBar         - Utilization bar; unknown values render as a placeholder
//	RenderSparkline   - One-line history graph on an absolute 0-100 scale
//	Spinner           - In-place progress line for CLI commands
//	WaitIndicator     - Bubble Tea spinner for the watch dashboard
//
// # Colors
//
// Colors are ANSI codes so they follow the terminal theme. Utilization uses
// green below 60%, yellow to 80%, red above. DisableColors switches to plain
// text for --no-color and non-terminal output.
package ui
