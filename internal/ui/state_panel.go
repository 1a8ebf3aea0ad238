package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"ble-pacer.klederson.com/internal/daemon"
	"ble-pacer.klederson.com/internal/scan"
)

// StateView is everything the state panel draws.
type StateView struct {
	Snapshot    daemon.Snapshot
	Sessions    []scan.SessionInfo
	IdleTimeout time.Duration
	Now         time.Time
}

// RenderStatePanel renders the controller state, inputs, sessions and recent
// transitions.
func RenderStatePanel(v StateView, width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	c := v.Snapshot.Controller
	sep := StyleSeparator.Render(strings.Repeat("-", innerW))

	lines := []string{
		StylePanelTitle.Render("SCAN STATE"),
		sep,
		"  " + StateBadge(c.State),
		"",
		"  " + indicator(c.ScreenOn, "screen on", "screen off") + "   " + indicator(c.InMotion, "in motion", "still"),
		"",
	}

	m := v.Snapshot.Motion
	armed := "no"
	if m.Armed {
		armed = "yes"
	}
	radio := v.Snapshot.Transport.Radio
	if v.Snapshot.Transport.Running {
		radio += " @ " + v.Snapshot.Transport.Mode
	}
	fields := []struct{ label, value string }{
		{"Sensor", m.Sensor},
		{"Threshold", fmt.Sprintf("%.1f", m.Threshold)},
		{"Armed", armed},
		{"Radio", radio},
		{"Idle", IdleRemaining(c.IdleDeadline, v.Now)},
	}
	for _, f := range fields {
		lines = append(lines, StyleLabel.Render(fmt.Sprintf("  %-10s", f.label))+StyleValue.Render(f.value))
	}

	barW := innerW - 14
	if barW < 10 {
		barW = 10
	}
	lines = append(lines, StyleLabel.Render("  Countdown ")+renderIdleBar(c.IdleDeadline, v.IdleTimeout, v.Now, barW))
	lines = append(lines, "")

	lines = append(lines, StylePanelTitle.Render(fmt.Sprintf("SESSIONS [%d]", len(v.Sessions))), sep)
	if len(v.Sessions) == 0 {
		lines = append(lines, StyleHelp.Render("  none, press N to add one"))
	}
	for _, s := range v.Sessions {
		run := StyleIndicatorOff.Render("stopped")
		if s.Running {
			run = StyleIndicatorOn.Render(s.Mode)
		}
		name := s.Name
		if name == "" {
			name = s.ID
		}
		lines = append(lines, fmt.Sprintf("  %s %s %s",
			StyleValue.Render(truncRaw(name, 14)), run, StyleHelp.Render(s.CallbackType)))
	}
	lines = append(lines, "")

	lines = append(lines, StylePanelTitle.Render("HISTORY"), sep)
	history := v.Snapshot.History
	if len(history) > 0 {
		timeline := make([]float64, 0, len(history)+1)
		timeline = append(timeline, float64(history[0].From))
		for _, t := range history {
			timeline = append(timeline, float64(t.To))
		}
		lines = append(lines, "  "+lipgloss.NewStyle().Foreground(ColorGreen).Render(renderSparkline(timeline, innerW-4)))
	}
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		lines = append(lines, fmt.Sprintf("  %s %s -> %s",
			StyleHelp.Render(t.At.Format("15:04:05")), StyleLabel.Render(StateLabel(t.From)), StyleValue.Render(StateLabel(t.To))))
	}

	if len(lines) > height-2 {
		lines = lines[:height-2]
	}
	for len(lines) < height-2 {
		lines = append(lines, "")
	}

	content := strings.Join(lines, "\n")
	return StylePanelActive.Width(width - 2).Height(height - 2).Render(content)
}

// renderIdleBar drains from full to empty as the idle countdown runs out.
func renderIdleBar(deadline *time.Time, timeout time.Duration, now time.Time, width int) string {
	ratio := 0.0
	if deadline != nil && timeout > 0 {
		ratio = float64(deadline.Sub(now)) / float64(timeout)
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(math.Round(ratio * float64(width)))

	bar := strings.Repeat("|", filled) + strings.Repeat("-", width-filled)
	filledPart := lipgloss.NewStyle().Foreground(ColorWarning).Render(bar[:filled])
	emptyPart := lipgloss.NewStyle().Foreground(ColorDimGreen).Render(bar[filled:])
	return StyleHelp.Render("[") + filledPart + emptyPart + StyleHelp.Render("]")
}

func renderSparkline(values []float64, width int) string {
	if len(values) == 0 {
		return ""
	}

	chars := []byte{'_', '.', '-', '~', '^'}

	minV, maxV := values[0], values[0]
	for _, v := range values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	rng := maxV - minV
	if rng < 1 {
		rng = 1
	}

	start := 0
	if len(values) > width {
		start = len(values) - width
	}

	var sb strings.Builder
	for i := start; i < len(values); i++ {
		idx := int((values[i] - minV) / rng * float64(len(chars)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(chars) {
			idx = len(chars) - 1
		}
		sb.WriteByte(chars[idx])
	}

	return sb.String()
}
