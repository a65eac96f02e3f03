package sensegg

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Packet is one line emitted by the SensEgg receiver.
type Packet struct {
	SensorID int                        `json:"SENSOR_ID"`
	Data     map[string]json.RawMessage `json:"data"`
}

// fieldSlots maps receiver field names to state slots. Unknown fields are
// ignored.
var fieldSlots = map[string]string{
	"BME_T":    "T",
	"BME_H":    "raH",
	"BME_P":    "aP",
	"SNE_BATT": "btVcc",
	"NTC_T":    "ntcT",
}

var errNoSensorID = errors.New("packet has no SENSOR_ID")

// ParsePacket decodes a line and returns the sensor id and the slot values
// it carries.
func ParsePacket(line []byte) (int, map[string]float64, error) {
	var p Packet
	if err := json.Unmarshal(line, &p); err != nil {
		return 0, nil, fmt.Errorf("invalid packet: %w", err)
	}
	if p.SensorID == 0 {
		return 0, nil, errNoSensorID
	}

	values := make(map[string]float64, len(p.Data))
	for field, raw := range p.Data {
		slot, ok := fieldSlots[field]
		if !ok {
			continue
		}
		v, err := parseValue(raw)
		if err != nil {
			return p.SensorID, nil, fmt.Errorf("field %s: %w", field, err)
		}
		values[slot] = v
	}
	return p.SensorID, values, nil
}

// parseValue accepts both quoted and bare numbers; the receiver firmware
// sends strings.
func parseValue(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("not a number: %s", string(raw))
	}
	return f, nil
}
