package bluetooth

import (
	"sort"
	"strings"
)

// company is one Bluetooth SIG assigned company identifier.
type company struct {
	id   uint16
	name string
}

// companies is sorted by id and covers the vendors common among wearables
// and trackers. The full registry lives at
// https://www.bluetooth.com/specifications/assigned-numbers/.
var companies = []company{
	{0x0002, "Intel"},
	{0x0006, "Microsoft"},
	{0x000A, "Qualcomm"},
	{0x000D, "Texas Inst."},
	{0x000F, "Broadcom"},
	{0x0047, "Plantronics"},
	{0x004C, "Apple"},
	{0x0056, "Sony Erics."},
	{0x0059, "Nordic"},
	{0x0060, "Motorola"},
	{0x0075, "Samsung"},
	{0x0078, "Nike"},
	{0x0087, "Bose"},
	{0x00AA, "Realtek"},
	{0x00D2, "LG"},
	{0x00E0, "Google"},
	{0x00E3, "Harman"},
	{0x012D, "Sony"},
	{0x0131, "JBL"},
	{0x0154, "Belkin"},
	{0x0157, "Huawei"},
	{0x015D, "Espressif"},
	{0x0171, "Amazon"},
	{0x01DA, "Jabra"},
	{0x0246, "Logitech"},
	{0x0269, "Oura"},
	{0x02A9, "Anker"},
	{0x02FF, "Tile"},
	{0x0310, "Xiaomi"},
	{0x0362, "Yeelight"},
	{0x038F, "Garmin"},
	{0x0397, "TP-Link"},
	{0x03DA, "Fitbit"},
	{0x0473, "Withings"},
	{0x048F, "Wyze"},
	{0x0499, "Ruuvi"},
	{0x0672, "Shenzhen"},
	{0x0822, "Tuya/Govee"},
	{0x0958, "IKEA"},
	{0x0988, "Sonos"},
	{0x09A7, "Ring"},
}

// LookupManufacturer returns the vendor name for a company ID, or "" when
// the ID is not in the table.
func LookupManufacturer(id uint16) string {
	i := sort.Search(len(companies), func(i int) bool { return companies[i].id >= id })
	if i < len(companies) && companies[i].id == id {
		return companies[i].name
	}
	return ""
}

// ManufacturerID resolves a vendor name, case-insensitively, to its company
// ID. Session filters use it so configs can say "apple" instead of 76.
func ManufacturerID(name string) (uint16, bool) {
	for _, c := range companies {
		if strings.EqualFold(c.name, strings.TrimSpace(name)) {
			return c.id, true
		}
	}
	return 0, false
}
