package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/scan"
)

// RenderMenuBar renders the top menu bar.
func RenderMenuBar(width int, radio string, state scan.State) string {
	title := fmt.Sprintf(" %s v%s ", config.AppName, config.AppVersion)

	keys := []struct{ key, label string }{
		{"O", "screen"},
		{"M", "otion"},
		{"N", "ew"},
		{"X", "remove"},
		{"Q", "uit"},
	}

	menu := ""
	for _, k := range keys {
		menu += "  " + StyleMenuKey.Render("["+k.key+"]") + StyleMenuLabel.Render(k.label)
	}

	radioInfo := StyleMenuLabel.Render(fmt.Sprintf("Radio: %s", radio))

	left := StyleMenuKey.Render(title) + menu
	right := StateBadge(state) + "  " + radioInfo + " "

	return StyleMenuBar.Width(width).Render(left + pad(width-lipgloss.Width(left)-lipgloss.Width(right)) + right)
}

func pad(n int) string {
	if n < 0 {
		n = 0
	}
	return strings.Repeat(" ", n)
}
