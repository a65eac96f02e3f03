package wxcalc

import (
	"math"
	"testing"
)

func TestRoundTo(t *testing.T) {
	tests := []struct {
		name   string
		n      float64
		places int
		want   float64
	}{
		{"two places", 3.14159, 2, 3.14},
		{"binary halfway", 1.005, 2, 1.01},
		{"three places", 0.5159999, 3, 0.516},
		{"negative", -2.345, 1, -2.3},
		{"zero places", 7.5, 0, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoundTo(tt.n, tt.places); got != tt.want {
				t.Errorf("RoundTo(%v, %d) = %v, want %v", tt.n, tt.places, got, tt.want)
			}
		})
	}
}

func TestDewPoint(t *testing.T) {
	tests := []struct {
		name string
		t    float64
		rh   float64
		want float64
	}{
		{"mild and humid", 20, 50, 9.27},
		{"saturated", 10, 100, 10},
		{"below freezing", -5, 80, -7.91},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DewPoint(tt.t, tt.rh)
			if math.Abs(got-tt.want) > 0.05 {
				t.Errorf("DewPoint(%v, %v) = %.3f, want ~%.2f", tt.t, tt.rh, got, tt.want)
			}
		})
	}
}

func TestAbsoluteHumidity(t *testing.T) {
	got := AbsoluteHumidity(20, 50)
	if math.Abs(got-8.64) > 0.05 {
		t.Errorf("AbsoluteHumidity(20, 50) = %.3f, want ~8.64", got)
	}
}

func TestQFF(t *testing.T) {
	got := QFF(1000, 15, 132)
	if math.Abs(got-1015.75) > 0.05 {
		t.Errorf("QFF(1000, 15, 132) = %.3f, want ~1015.75", got)
	}

	if got := QFF(1013.25, 10, 0); got != 1013.25 {
		t.Errorf("QFF at sea level = %v, want unchanged pressure", got)
	}
}

func TestBatteryIndicator(t *testing.T) {
	thresholds := []float64{2.65, 2.45}

	tests := []struct {
		name    string
		voltage float64
		want    int
	}{
		{"full", 2.98, 0},
		{"at upper threshold", 2.65, 1},
		{"medium", 2.5, 1},
		{"empty", 2.3, 2},
		{"no thresholds", 1.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := thresholds
			if tt.name == "no thresholds" {
				th = nil
			}
			if got := BatteryIndicator(tt.voltage, th); got != tt.want {
				t.Errorf("BatteryIndicator(%v) = %d, want %d", tt.voltage, got, tt.want)
			}
		})
	}
}
