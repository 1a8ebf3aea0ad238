package bluetooth

import (
	"math"
	"time"
)

// Device is an advertiser seen by at least one scan session.
type Device struct {
	MAC          string    `json:"mac"`
	Name         string    `json:"name,omitempty"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	RSSI         float64   `json:"rssi"`     // EMA-smoothed dBm
	Distance     float64   `json:"distance"` // Estimated distance in meters
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	Seen         int       `json:"seen"`
	Session      string    `json:"session,omitempty"` // last session that reported it
}

// DisplayName returns the device name or "[unnamed]" if empty.
func (d *Device) DisplayName() string {
	if d.Name == "" {
		return "[unnamed]"
	}
	return d.Name
}

// RSSIToDistance estimates distance from RSSI using the log-distance path loss model.
// Formula: d = 10^((measuredPower - rssi) / (10 * n))
func RSSIToDistance(rssi, measuredPower, pathLossExp float64) float64 {
	if rssi >= 0 {
		return 0.1
	}
	d := math.Pow(10, (measuredPower-rssi)/(10*pathLossExp))
	if d < 0.1 {
		return 0.1
	}
	return d
}
