// Package types holds the value types shared between the state store, its
// subscribers and the storage engines.
package types

import (
	"fmt"
	"time"
)

// StateCommon describes a state slot. It is set when the slot is created and
// never changed by writes.
type StateCommon struct {
	Name  string `json:"name,omitempty" msgpack:"name,omitempty"`
	Role  string `json:"role,omitempty" msgpack:"role,omitempty"`
	Type  string `json:"type,omitempty" msgpack:"type,omitempty"`
	Unit  string `json:"unit,omitempty" msgpack:"unit,omitempty"`
	Read  bool   `json:"read" msgpack:"read"`
	Write bool   `json:"write" msgpack:"write"`
}

// State is a named slot in the state store. Val holds a float64, bool,
// string or []float64.
type State struct {
	ID         string      `json:"id" msgpack:"id"`
	Val        interface{} `json:"val" msgpack:"val"`
	Ack        bool        `json:"ack" msgpack:"ack"`
	Ts         time.Time   `json:"ts" msgpack:"ts"`
	LastChange time.Time   `json:"lc" msgpack:"lc"`
	Common     StateCommon `json:"common" msgpack:"common"`
}

// StateChange is emitted after every successful write.
type StateChange struct {
	ID  string
	Old *State
	New State
}

// Changed reports whether the write altered the stored value.
func (c StateChange) Changed() bool {
	if c.Old == nil {
		return true
	}
	return !ValuesEqual(c.Old.Val, c.New.Val)
}

// Float converts a stored value to float64. JSON and msgpack round trips
// produce a variety of numeric types, so all of them are accepted.
func Float(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Bool converts a stored value to bool. Numbers are true when non-zero.
func Bool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		return b == "true" || b == "1", true
	}
	if f, ok := Float(v); ok {
		return f != 0, true
	}
	return false, false
}

// FloatSlice converts a stored list value to []float64.
func FloatSlice(v interface{}) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return s, true
	case []interface{}:
		out := make([]float64, 0, len(s))
		for _, e := range s {
			f, ok := Float(e)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	}
	return nil, false
}

// ValuesEqual compares two stored values, treating all numeric types alike.
func ValuesEqual(a, b interface{}) bool {
	if fa, ok := Float(a); ok {
		if _, isBool := a.(bool); !isBool {
			fb, ok := Float(b)
			_, bIsBool := b.(bool)
			return ok && !bIsBool && fa == fb
		}
	}
	if sa, ok := FloatSlice(a); ok {
		sb, ok := FloatSlice(b)
		if !ok || len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if sa[i] != sb[i] {
				return false
			}
		}
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b) && fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}
