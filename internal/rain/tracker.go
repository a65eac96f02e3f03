// Package rain turns successive readings of a tipping-bucket counter into
// rainfall amounts, a daily total and a raining/dry flag.
package rain

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTipFactor is the amount of rain, in litres per square metre,
	// represented by one bucket tip of the Mobile Alerts MA10650 gauge.
	DefaultTipFactor = 0.258

	// DefaultDryPollThreshold is the number of consecutive polls without a
	// tip before a rain event is considered over.
	DefaultDryPollThreshold = 5
)

// Snapshot is one reading of the gauge.
type Snapshot struct {
	TipCount int64
	// Timestamp is the measurement time in Unix seconds.
	Timestamp int64
}

// State is the tracker state of a single gauge between polls.
type State struct {
	LastTipCount        int64
	IsRaining           bool
	ConsecutiveDryPolls int
	DailyTotal          float64
	LastAmount          float64
	// LastTimestamp is the Unix time of the previously processed snapshot.
	// Zero means no snapshot has been seen yet.
	LastTimestamp int64
	// StartedFresh is set on (re)start and cleared by the first snapshot.
	StartedFresh bool
}

// EventType distinguishes the transitions a tracker can report.
type EventType int

const (
	RainStarted EventType = iota + 1
	RainStopped
)

func (t EventType) String() string {
	switch t {
	case RainStarted:
		return "rain_started"
	case RainStopped:
		return "rain_stopped"
	}
	return "unknown"
}

// Event is a transition of the raining flag.
type Event struct {
	Type       EventType
	At         time.Time
	Amount     float64
	DailyTotal float64
}

// Config holds the tracker's calibration.
type Config struct {
	TipFactor        float64
	DryPollThreshold int
	// Location defines the calendar day used for the daily total.
	Location *time.Location
}

// Tracker applies snapshots to a State. It holds no per-gauge data, so one
// Tracker can serve any number of gauges.
type Tracker struct {
	cfg    Config
	logger *zap.SugaredLogger
}

// NewTracker returns a Tracker, filling in defaults for unset fields.
func NewTracker(cfg Config, logger *zap.SugaredLogger) *Tracker {
	if cfg.TipFactor <= 0 {
		cfg.TipFactor = DefaultTipFactor
	}
	if cfg.DryPollThreshold <= 0 {
		cfg.DryPollThreshold = DefaultDryPollThreshold
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Tracker{cfg: cfg, logger: logger}
}

// Process applies one snapshot and returns the new state along with any
// events it produced. st is not modified.
func (t *Tracker) Process(st State, snap Snapshot) (State, []Event) {
	var events []Event

	at := time.Unix(snap.Timestamp, 0).In(t.cfg.Location)
	newDay := st.LastTimestamp != 0 && !t.sameDay(st.LastTimestamp, snap.Timestamp)
	st.LastTimestamp = snap.Timestamp

	if newDay {
		st.DailyTotal = 0
	}

	// The first reading after a restart, and a zero counter, only establish
	// the baseline.
	if st.StartedFresh || snap.TipCount == 0 {
		st.LastTipCount = snap.TipCount
		st.StartedFresh = false
		return st, nil
	}

	delta := snap.TipCount - st.LastTipCount

	switch {
	case delta < 0:
		t.logger.Warnw("tip counter went backwards, resynchronising",
			"previous", st.LastTipCount,
			"current", snap.TipCount)
		st.LastTipCount = snap.TipCount

	case delta > 0:
		amount := float64(delta) * t.cfg.TipFactor
		st.DailyTotal += amount
		st.ConsecutiveDryPolls = 0
		st.LastTipCount = snap.TipCount
		st.LastAmount = amount
		if !st.IsRaining {
			st.IsRaining = true
			events = append(events, Event{Type: RainStarted, At: at, Amount: amount, DailyTotal: st.DailyTotal})
		}

	default:
		if st.IsRaining {
			st.ConsecutiveDryPolls++
			if st.ConsecutiveDryPolls >= t.cfg.DryPollThreshold {
				st.IsRaining = false
				st.LastAmount = 0
				st.ConsecutiveDryPolls = 0
				events = append(events, Event{Type: RainStopped, At: at, DailyTotal: st.DailyTotal})
			}
		}
	}

	return st, events
}

func (t *Tracker) sameDay(a, b int64) bool {
	ta := time.Unix(a, 0).In(t.cfg.Location)
	tb := time.Unix(b, 0).In(t.cfg.Location)
	ya, ma, da := ta.Date()
	yb, mb, db := tb.Date()
	return ya == yb && ma == mb && da == db
}
