package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"ble-pacer.klederson.com/internal/daemon"
)

// RenderStatusBar renders the bottom status bar. A non-nil err replaces the
// summary with the last dashboard error.
func RenderStatusBar(width int, snap daemon.Snapshot, now time.Time, err error) string {
	var content string
	if err != nil {
		content = StyleStatusError.Render("[ERROR] ") + StyleStatusBar.Render(err.Error())
	} else {
		c := snap.Controller
		mode := snap.Transport.Mode
		if !snap.Transport.Running {
			mode = "idle"
		}
		info := fmt.Sprintf(" Sessions: %d  Radio: %s  Devices: %d  Idle: %s  Up: %s",
			c.Sessions, mode, snap.Devices, IdleRemaining(c.IdleDeadline, now),
			FormatDuration(now.Sub(snap.StartedAt)))
		content = StateBadge(c.State) + StyleStatusBar.Foreground(ColorGreen).Render(info)
	}

	return StyleStatusBar.Width(width).Render(content + pad(width-lipgloss.Width(content)))
}

// IdleRemaining formats the time left on the idle countdown, or "-" when none
// is running.
func IdleRemaining(deadline *time.Time, now time.Time) string {
	if deadline == nil {
		return "-"
	}
	left := deadline.Sub(now)
	if left < 0 {
		left = 0
	}
	return FormatDuration(left)
}

// FormatDuration renders d as m:ss, or h:mm:ss past an hour.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
