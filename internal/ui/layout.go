package ui

import "github.com/charmbracelet/lipgloss"

// ComposeLayout joins the state panel and device list horizontally,
// with menu bar on top and status bar on bottom.
func ComposeLayout(menuBar, statePanel, deviceList, statusBar string) string {
	middle := lipgloss.JoinHorizontal(lipgloss.Top, statePanel, deviceList)
	return lipgloss.JoinVertical(lipgloss.Left, menuBar, middle, statusBar)
}
