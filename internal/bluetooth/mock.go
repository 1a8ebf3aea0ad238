package bluetooth

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"ble-pacer.klederson.com/internal/scan"
)

var mockDeviceTemplates = []struct {
	Name    string
	Company uint16
	Service string
}{
	{"iPhone 15 Pro", 0x004C, ""},
	{"Galaxy S24 Ultra", 0x0075, ""},
	{"Pixel 9 Pro", 0x00E0, ""},
	{"AirPods Pro", 0x004C, ""},
	{"MacBook Air", 0x004C, ""},
	{"Apple Watch", 0x004C, "180d"},
	{"Fitbit Charge 6", 0x03DA, "180d"},
	{"Tile Tracker", 0x02FF, "feed"},
	{"Tesla Model 3", 0x0000, ""},
	{"iPad Pro", 0x004C, ""},
	{"OnePlus Buds 3", 0x0000, ""},
	{"Eddystone Beacon", 0x0000, "feaa"},
	{"RuuviTag", 0x0499, ""},
	{"Oura Ring", 0x0269, ""},
	{"", 0x0006, ""},
}

type mockDevice struct {
	mac       string
	name      string
	company   uint16
	service   string
	baseRSSI  float64
	phase     float64
	amplitude float64
	active    bool
}

// MockRadio generates fake advertisers for demo mode. Lower scan modes see
// proportionally fewer advertisements, like a real duty-cycled radio.
type MockRadio struct {
	mu      sync.Mutex
	devices []mockDevice
	rng     *rand.Rand
}

// NewMockRadio creates a mock radio with 8-12 random fake devices.
func NewMockRadio() *MockRadio {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	total := 8 + rng.Intn(5)
	perm := rng.Perm(len(mockDeviceTemplates))

	devices := make([]mockDevice, 0, total)
	for _, ti := range perm[:total] {
		tmpl := mockDeviceTemplates[ti]
		devices = append(devices, mockDevice{
			mac:       randomMAC(rng),
			name:      tmpl.Name,
			company:   tmpl.Company,
			service:   tmpl.Service,
			baseRSSI:  -40 - rng.Float64()*50, // -40 to -90 dBm
			phase:     rng.Float64() * 2 * math.Pi,
			amplitude: 3 + rng.Float64()*8, // 3-11 dBm fluctuation
			active:    true,
		})
	}
	return &MockRadio{devices: devices, rng: rng}
}

func (r *MockRadio) Name() string { return "mock" }

// Scan emits advertisements every 200ms until ctx is cancelled.
func (r *MockRadio) Scan(ctx context.Context, mode scan.Mode, handle func(scan.Result)) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	window, interval := DutyCycle(mode)
	duty := float64(window) / float64(interval)

	t := 0.0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t += 0.2
			for _, res := range r.emit(t, duty) {
				handle(res)
			}
		}
	}
}

func (r *MockRadio) emit(t, duty float64) []scan.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var out []scan.Result
	for i := range r.devices {
		d := &r.devices[i]

		// Randomly toggle device visibility (appear/disappear)
		if r.rng.Float64() < 0.005 {
			d.active = !d.active
		}
		if !d.active || r.rng.Float64() > duty {
			continue
		}

		// Sinusoidal RSSI fluctuation + noise
		rssi := d.baseRSSI + d.amplitude*math.Sin(t*0.5+d.phase) + (r.rng.Float64()-0.5)*4

		res := scan.Result{
			Address:   d.mac,
			Name:      d.name,
			RSSI:      int16(rssi),
			Timestamp: now,
		}
		if d.company != 0 {
			res.ManufacturerData = map[uint16][]byte{d.company: {0x02, 0x15}}
		}
		if d.service != "" {
			res.Services = []string{d.service}
		}
		// Some advertisements omit the name (realistic)
		if r.rng.Float64() < 0.05 {
			res.Name = ""
		}
		if res.Name == "" {
			res.Name = fallbackName(res.Address, res.ManufacturerData)
		}
		out = append(out, res)
	}
	return out
}

func randomMAC(rng *rand.Rand) string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = byte(rng.Intn(256))
	}
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}
