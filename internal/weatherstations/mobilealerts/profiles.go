package mobilealerts

import (
	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/internal/weatherstations"
	"github.com/chrissnell/homewx/pkg/config"
)

// Slots the rain tracker owns on a rain gauge.
const (
	slotTipCount     = "rf"
	slotLastTipCount = "lrf"
	slotRaining      = "rb"
	slotLastAmount   = "rsd"
	slotDailyTotal   = "rst"
)

// slot describes one data point of a sensor. fromAPI slots are copied from
// the measurement on every poll; the rest are derived locally.
type slot struct {
	weatherstations.DataPoint
	fromAPI bool
}

func numberSlot(name, desc, unit string, fromAPI bool) slot {
	return slot{
		DataPoint: weatherstations.DataPoint{
			Slot:    name,
			Initial: 0.0,
			Common:  types.StateCommon{Name: desc, Type: "number", Role: "value", Unit: unit, Read: true, Write: true},
		},
		fromAPI: fromAPI,
	}
}

func boolSlot(name, desc string, fromAPI bool) slot {
	return slot{
		DataPoint: weatherstations.DataPoint{
			Slot:    name,
			Initial: false,
			Common:  types.StateCommon{Name: desc, Type: "boolean", Role: "state", Read: true, Write: true},
		},
		fromAPI: fromAPI,
	}
}

// profiles maps a measurement profile to its data points. "rain" is the
// MA10650 rain gauge (device type 08), "temperature" the MA10100 (type 02).
var profiles = map[string][]slot{
	config.ProfileRain: {
		numberSlot("t1", "Temperature", "°C", true),
		numberSlot("r", "Total rainfall reported by the sensor", "mm", true),
		numberSlot(slotTipCount, "Bucket tip counter", "", true),
		numberSlot("ts", "Measurement time", "s", true),
		boolSlot("lb", "Battery low", true),
		numberSlot(slotLastTipCount, "Tip counter at last poll", "", false),
		numberSlot(slotLastAmount, "Rainfall since last poll", "mm", false),
		numberSlot(slotDailyTotal, "Rainfall today", "mm", false),
		boolSlot(slotRaining, "Raining", false),
	},
	config.ProfileTemperature: {
		numberSlot("t1", "Temperature", "°C", true),
		numberSlot("ts", "Measurement time", "s", true),
		boolSlot("lb", "Battery low", true),
	},
}

func dataPoints(profile string) []weatherstations.DataPoint {
	slots := profiles[profile]
	out := make([]weatherstations.DataPoint, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.DataPoint)
	}
	return out
}
