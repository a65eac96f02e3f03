package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/chrissnell/homewx/pkg/solar"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SunEvent selects the sun transition an astro job follows.
type SunEvent int

const (
	Sunrise SunEvent = iota
	Sunset
)

func (e SunEvent) String() string {
	if e == Sunset {
		return "sunset"
	}
	return "sunrise"
}

// searchDays bounds the search for the next sun event. Beyond it the
// location is in polar day or night and the job waits a day before retrying.
const searchDays = 7

// Astro runs jobs relative to sunrise and sunset at a fixed location.
type Astro struct {
	clock     clockwork.Clock
	latitude  float64
	longitude float64
	loc       *time.Location
	logger    *zap.SugaredLogger
}

// NewAstro creates an astro scheduler for the given coordinates.
func NewAstro(clock clockwork.Clock, latitude, longitude float64, loc *time.Location, logger *zap.SugaredLogger) *Astro {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Astro{
		clock:     clock,
		latitude:  latitude,
		longitude: longitude,
		loc:       loc,
		logger:    logger.Named("astro"),
	}
}

// SunTimes returns sunrise and sunset of the local day containing t.
func (a *Astro) SunTimes(t time.Time) (sunrise, sunset time.Time, ok bool) {
	return solar.SunTimes(t.In(a.loc), a.latitude, a.longitude)
}

// Next returns the first occurrence of event+shift strictly after t.
func (a *Astro) Next(t time.Time, event SunEvent, shift time.Duration) (time.Time, bool) {
	day := t.In(a.loc)
	for i := 0; i <= searchDays; i++ {
		rise, set, ok := a.SunTimes(day.AddDate(0, 0, i))
		if !ok {
			continue
		}
		at := rise
		if event == Sunset {
			at = set
		}
		at = at.Add(shift)
		if at.After(t) {
			return at, true
		}
	}
	return time.Time{}, false
}

// Schedule runs fn every day at event+shift until ctx is cancelled.
func (a *Astro) Schedule(ctx context.Context, wg *sync.WaitGroup, name string, event SunEvent, shift time.Duration, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			now := a.clock.Now()
			wait := 24 * time.Hour
			next, ok := a.Next(now, event, shift)
			if ok {
				wait = next.Sub(now)
				a.logger.Infow("next astro job run", "job", name, "event", event.String(), "at", next)
			} else {
				a.logger.Warnw("no sun event within search window, retrying in a day", "job", name, "event", event.String())
			}

			timer := a.clock.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.Chan():
			}

			if ok {
				fn(ctx)
			}
		}
	}()
}
