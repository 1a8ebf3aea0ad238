package scan

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ble-pacer.klederson.com/internal/config"
)

// bluetoothBase is the Bluetooth base UUID that 16- and 32-bit service
// UUIDs are shorthand for.
const bluetoothBase = "-0000-1000-8000-00805f9b34fb"

// Filter matches advertisements. Zero-valued fields match anything.
type Filter struct {
	Name           string  `json:"name,omitempty"`
	Address        string  `json:"address,omitempty"`
	ServiceUUID    string  `json:"service_uuid,omitempty"`
	ManufacturerID *uint16 `json:"manufacturer_id,omitempty"`
	MinRSSI        int16   `json:"min_rssi,omitempty"`
}

// Matches reports whether r satisfies every populated field of f.
func (f Filter) Matches(r Result) bool {
	if f.Name != "" && f.Name != r.Name {
		return false
	}
	if f.Address != "" && !strings.EqualFold(f.Address, r.Address) {
		return false
	}
	if f.MinRSSI != 0 && r.RSSI < f.MinRSSI {
		return false
	}
	if f.ManufacturerID != nil {
		if _, ok := r.ManufacturerData[*f.ManufacturerID]; !ok {
			return false
		}
	}
	if f.ServiceUUID != "" {
		want, err := CanonicalUUID(f.ServiceUUID)
		if err != nil {
			return false
		}
		found := false
		for _, s := range r.Services {
			if got, err := CanonicalUUID(s); err == nil && got == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MatchAny reports whether r passes at least one filter. No filters means
// everything passes.
func MatchAny(filters []Filter, r Result) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(r) {
			return true
		}
	}
	return false
}

// CanonicalUUID normalizes a service UUID to its lower-case 128-bit form,
// expanding 16- and 32-bit shorthands against the Bluetooth base UUID.
func CanonicalUUID(s string) (string, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	switch len(s) {
	case 4:
		s = "0000" + s + bluetoothBase
	case 8:
		s = s + bluetoothBase
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid service uuid %q: %w", s, err)
	}
	return u.String(), nil
}

// FromConfig builds session settings and filters from a configured session.
// The returned *Settings is a fresh key suitable for StartScan.
func FromConfig(c config.SessionConfig) (*Settings, []Filter, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	s := &Settings{Mode: ModeLowPower, ReportDelay: c.ReportDelay}
	if c.CallbackType == "first" {
		s.CallbackType = CallbackFirstMatch
	}
	if c.ResultType == "abbreviated" {
		s.ResultType = ResultAbbreviated
	}

	filters := make([]Filter, 0, len(c.Filters))
	for _, fc := range c.Filters {
		f := Filter{
			Name:           fc.Name,
			Address:        fc.Address,
			ManufacturerID: fc.ManufacturerID,
			MinRSSI:        fc.MinRSSI,
		}
		if fc.ServiceUUID != "" {
			u, err := CanonicalUUID(fc.ServiceUUID)
			if err != nil {
				return nil, nil, fmt.Errorf("session %q: %w", c.Name, err)
			}
			f.ServiceUUID = u
		}
		filters = append(filters, f)
	}
	return s, filters, nil
}
