package ui

import (
	"fmt"
	"strings"
	"time"

	"ble-pacer.klederson.com/internal/bluetooth"
)

// RenderDeviceList renders the scrollable list of devices reported by the
// scan sessions. The header stays fixed; only the entries scroll.
func RenderDeviceList(devices []bluetooth.Device, width, height int, cursorIndex int, now time.Time) string {
	innerW := width - 4
	if innerW < 10 {
		innerW = 10
	}

	title := StylePanelTitle.Render(fmt.Sprintf("DEVICES [%d]", len(devices)))
	separator := StyleSeparator.Render(strings.Repeat("-", innerW))
	headerLines := []string{title, separator}
	headerCount := len(headerLines)

	// Total inner height (excluding border top+bottom)
	innerH := height - 2
	if innerH < headerCount+1 {
		innerH = headerCount + 1
	}

	devSpace := innerH - headerCount
	if devSpace < 1 {
		devSpace = 1
	}

	var devLines []string
	if len(devices) == 0 {
		devLines = append(devLines, "")
		devLines = append(devLines, StyleHelp.Render(" No devices..."))
		devLines = append(devLines, StyleHelp.Render(" Waiting for scan results"))
	} else {
		linesPerDevice := 4 // 3 content + 1 blank
		maxVisible := devSpace / linesPerDevice
		if maxVisible < 1 {
			maxVisible = 1
		}

		// Keep the cursor in view
		viewStart := 0
		if cursorIndex >= maxVisible {
			viewStart = cursorIndex - maxVisible + 1
		}

		count := 0
		for i := viewStart; i < len(devices); i++ {
			entry := renderDeviceEntry(&devices[i], innerW, i == cursorIndex, now)
			for _, l := range entry {
				if count >= devSpace {
					break
				}
				devLines = append(devLines, l)
				count++
			}
			if count >= devSpace {
				break
			}
		}
	}

	if len(devLines) > devSpace {
		devLines = devLines[:devSpace]
	}
	for len(devLines) < devSpace {
		devLines = append(devLines, "")
	}

	all := make([]string, 0, innerH)
	all = append(all, headerLines...)
	all = append(all, devLines...)
	if len(all) > innerH {
		all = all[:innerH]
	}

	content := strings.Join(all, "\n")
	rendered := StylePanelBorder.Width(width - 2).Height(innerH).Render(content)

	// lipgloss Height() only sets a minimum; clamp overflow ourselves.
	outLines := strings.Split(rendered, "\n")
	if len(outLines) > height {
		outLines = outLines[:height]
	}
	for len(outLines) < height {
		outLines = append(outLines, "")
	}
	return strings.Join(outLines, "\n")
}

func renderDeviceEntry(d *bluetooth.Device, maxW int, isCursor bool, now time.Time) []string {
	name := d.DisplayName()
	nameMax := maxW - 18
	if nameMax < 4 {
		nameMax = 4
	}
	if len(name) > nameMax {
		name = name[:nameMax]
	}

	cursor := "  "
	if isCursor {
		cursor = ">>"
	}

	session := "[" + d.Session + "]"
	rssiStr := fmt.Sprintf("%ddBm", int(d.RSSI))
	distStr := fmt.Sprintf("~%.1fm", d.Distance)
	seen := fmt.Sprintf("x%d %s", d.Seen, formatLastSeen(d.LastSeen, now))

	if isCursor {
		raw1 := truncRaw(fmt.Sprintf("%s %s %s", cursor, name, session), maxW)
		raw2 := truncRaw(fmt.Sprintf("     %s %s", d.MAC, d.Manufacturer), maxW)
		raw3 := truncRaw(fmt.Sprintf("     %s  %s  %s", rssiStr, distStr, seen), maxW)
		return []string{
			StyleCursorLine.Render(raw1),
			StyleCursorLine.Render(raw2),
			StyleCursorLine.Render(raw3),
			"",
		}
	}

	line1 := fmt.Sprintf("   %s %s", StyleDeviceName.Render(name), StyleDeviceSession.Render(session))
	line2 := fmt.Sprintf("     %s %s", StyleDeviceMAC.Render(d.MAC), StyleHelp.Render(d.Manufacturer))
	line3 := fmt.Sprintf("     %s  %s  %s", StyleDeviceRSSI.Render(rssiStr), StyleDeviceRSSI.Render(distStr), StyleHelp.Render(seen))
	return []string{line1, line2, line3, ""}
}

// truncRaw pads or truncates a raw string to exactly w characters.
func truncRaw(s string, w int) string {
	if len(s) > w {
		return s[:w]
	}
	if len(s) < w {
		return s + strings.Repeat(" ", w-len(s))
	}
	return s
}

func formatLastSeen(t, now time.Time) string {
	d := now.Sub(t)
	if d < time.Second {
		return "now"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm ago", int(d.Minutes()))
}
