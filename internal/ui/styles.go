package ui

import (
	"github.com/charmbracelet/lipgloss"

	"ble-pacer.klederson.com/internal/scan"
)

// Matrix color palette
var (
	ColorMatrixGreen  = lipgloss.Color("#00FF41")
	ColorGreen        = lipgloss.Color("#00CC33")
	ColorMidGreen     = lipgloss.Color("#008F11")
	ColorDimGreen     = lipgloss.Color("#004A0A")
	ColorBlack        = lipgloss.Color("#000000")
	ColorBorderBright = lipgloss.Color("#00FF41")
	ColorBorderNorm   = lipgloss.Color("#00AA22")
	ColorError        = lipgloss.Color("#FF3300")
	ColorWarning      = lipgloss.Color("#FFAA00")
	ColorFast         = lipgloss.Color("#00FFAA")
)

// Pre-built styles
var (
	StyleMenuBar = lipgloss.NewStyle().
			Background(lipgloss.Color("#002200")).
			Foreground(ColorMatrixGreen).
			Bold(true).
			Padding(0, 1)

	StyleMenuKey = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleMenuLabel = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("#002200")).
			Foreground(ColorGreen).
			Padding(0, 1)

	StyleStatusError = lipgloss.NewStyle().
				Foreground(ColorError).
				Bold(true)

	StylePanelBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorderNorm)

	StylePanelActive = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorderBright)

	StylePanelTitle = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true).
			Padding(0, 1)

	StyleSeparator = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleValue = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleDeviceName = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleDeviceMAC = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleDeviceRSSI = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleDeviceSession = lipgloss.NewStyle().
				Foreground(ColorFast)

	StyleIndicatorOn = lipgloss.NewStyle().
				Foreground(ColorMatrixGreen).
				Bold(true)

	StyleIndicatorOff = lipgloss.NewStyle().
				Foreground(ColorDimGreen)

	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorDimGreen)

	StyleCursorLine = lipgloss.NewStyle().
			Foreground(ColorBlack).
			Background(ColorMatrixGreen).
			Bold(true)
)

// stateStyles color the scan state banner: idle is dim, slow scan warns,
// fast scan is bright.
var stateStyles = map[scan.State]lipgloss.Style{
	scan.NoScan: lipgloss.NewStyle().
		Foreground(ColorMidGreen).
		Background(ColorDimGreen).
		Bold(true).
		Padding(0, 1),
	scan.SlowScan: lipgloss.NewStyle().
		Foreground(ColorBlack).
		Background(ColorWarning).
		Bold(true).
		Padding(0, 1),
	scan.FastScan: lipgloss.NewStyle().
		Foreground(ColorBlack).
		Background(ColorFast).
		Bold(true).
		Padding(0, 1),
}

// StateBadge renders a scan state as a colored label.
func StateBadge(s scan.State) string {
	return stateStyles[s].Render(StateLabel(s))
}

// StateLabel is the banner text for a scan state.
func StateLabel(s scan.State) string {
	switch s {
	case scan.SlowScan:
		return "SLOW SCAN"
	case scan.FastScan:
		return "FAST SCAN"
	default:
		return "NO SCAN"
	}
}

func indicator(on bool, onLabel, offLabel string) string {
	if on {
		return StyleIndicatorOn.Render("● " + onLabel)
	}
	return StyleIndicatorOff.Render("○ " + offLabel)
}
