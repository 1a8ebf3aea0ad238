package bluetooth

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/metrics"
	"ble-pacer.klederson.com/internal/scan"
)

// DeviceStore is a thread-safe, size-bounded cache of discovered devices.
// Devices not seen within the TTL expire on their own.
type DeviceStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *Device]
}

// NewDeviceStore creates a store holding at most size devices for ttl.
func NewDeviceStore(size int, ttl time.Duration) *DeviceStore {
	if size <= 0 {
		size = config.DefaultDeviceCacheSize
	}
	if ttl <= 0 {
		ttl = config.DefaultDeviceTTL
	}
	return &DeviceStore{
		cache: expirable.NewLRU[string, *Device](size, func(string, *Device) {
			metrics.DevicesTracked.Dec()
		}, ttl),
	}
}

// Upsert records a scan result. RSSI of known devices is smoothed with an
// EMA; adding refreshes the device's TTL.
func (s *DeviceStore) Upsert(session string, r scan.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := r.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	rssi := float64(r.RSSI)

	if existing, ok := s.cache.Get(r.Address); ok {
		d := *existing
		d.RSSI = d.RSSI*(1-config.SmoothingAlpha) + rssi*config.SmoothingAlpha
		d.Distance = RSSIToDistance(d.RSSI, config.MeasuredPower, config.PathLossExp)
		d.LastSeen = now
		d.Seen++
		d.Session = session
		if r.Name != "" {
			d.Name = r.Name
		}
		s.cache.Add(r.Address, &d)
		return
	}

	d := &Device{
		MAC:       r.Address,
		Name:      r.Name,
		RSSI:      rssi,
		Distance:  RSSIToDistance(rssi, config.MeasuredPower, config.PathLossExp),
		FirstSeen: now,
		LastSeen:  now,
		Seen:      1,
		Session:   session,
	}
	for id := range r.ManufacturerData {
		if name := LookupManufacturer(id); name != "" {
			d.Manufacturer = name
			break
		}
	}
	s.cache.Add(r.Address, d)
	metrics.DevicesTracked.Inc()
}

// Snapshot returns a copy of all live devices (strongest RSSI first).
func (s *DeviceStore) Snapshot() []Device {
	s.mu.Lock()
	values := s.cache.Values()
	s.mu.Unlock()

	result := make([]Device, 0, len(values))
	for _, d := range values {
		// Values pads expired entries that have not been reaped yet with nil.
		if d == nil {
			continue
		}
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RSSI > result[j].RSSI // Strongest first (less negative)
	})
	return result
}

// Count returns the number of live devices.
func (s *DeviceStore) Count() int {
	return s.cache.Len()
}

// Purge drops every device.
func (s *DeviceStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}
