package timescaledb

import (
	"testing"
	"time"

	"github.com/chrissnell/homewx/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	ts := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		val      interface{}
		wantVal  *float64
		wantText *string
	}{
		{name: "number", val: 0.516, wantVal: ptr(0.516)},
		{name: "integer", val: int64(1718020800000), wantVal: ptr(1718020800000)},
		{name: "bool", val: true, wantVal: ptr(1)},
		{name: "list", val: []float64{2.65, 2.45}, wantText: strPtr("[2.65 2.45]")},
		{name: "nil", val: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecord(types.State{ID: "mobilealerts.08A1.rst", Val: tt.val, Ack: true, Ts: ts})
			assert.Equal(t, "mobilealerts.08A1.rst", r.StateID)
			assert.True(t, r.Time.Equal(ts))
			assert.True(t, r.Ack)
			assert.Equal(t, tt.wantVal, r.Val)
			assert.Equal(t, tt.wantText, r.TextVal)
		})
	}
}

func TestEntriesSkipsTextRows(t *testing.T) {
	ts := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	got := entries([]Record{
		{Time: ts, Val: ptr(1.5)},
		{Time: ts.Add(-time.Minute), TextVal: strPtr("x")},
		{Time: ts.Add(-2 * time.Minute), Val: ptr(0.5)},
	})
	require.Len(t, got, 2)
	assert.Equal(t, 1.5, got[0].Val)
	assert.Equal(t, 0.5, got[1].Val)
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "state_history", Record{}.TableName())
}

func ptr(f float64) *float64 { return &f }

func strPtr(s string) *string { return &s }
