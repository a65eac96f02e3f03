package state

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/chrissnell/homewx/internal/metrics"
	"github.com/chrissnell/homewx/internal/types"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ChangeMode selects which writes trigger a subscription.
type ChangeMode int

const (
	// ChangeAny fires on every write, including writes of an unchanged value.
	ChangeAny ChangeMode = iota
	// ChangeNe fires only when the value differs from the previous one.
	ChangeNe
)

// Handler is called for each matching state change. Handlers run one at a
// time on the dispatcher goroutine and may write states themselves.
type Handler func(ctx context.Context, change types.StateChange)

// Recorder observes every write synchronously, before subscribers run.
type Recorder interface {
	Record(st types.State)
}

type subscription struct {
	id      string
	pattern *regexp.Regexp
	mode    ChangeMode
	handler Handler
}

// Manager is the state store used by all components.
type Manager struct {
	backend     Backend
	logger      *zap.SugaredLogger
	clock       clockwork.Clock
	metrics     *metrics.Metrics
	recorders   []Recorder
	distributor chan<- types.StateChange

	writeMu sync.Mutex

	subsMu sync.RWMutex
	subs   []*subscription

	queueMu sync.Mutex
	queue   []types.StateChange
	wake    chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithRecorder adds a synchronous write observer.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorders = append(m.recorders, r) }
}

// WithDistributor forwards every change to the storage engines.
func WithDistributor(c chan<- types.StateChange) Option {
	return func(m *Manager) { m.distributor = c }
}

// WithMetrics enables instrumentation.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a Manager on top of backend. Subscribers are only
// notified once Run has been called.
func NewManager(backend Backend, logger *zap.SugaredLogger, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		logger:  logger.Named("state"),
		clock:   clockwork.NewRealClock(),
		wake:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run starts the dispatcher that delivers changes to subscribers.
func (m *Manager) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("cancellation request received, stopping state dispatcher")
				return
			case <-m.wake:
			}

			for {
				c, ok := m.dequeue()
				if !ok {
					break
				}
				m.dispatch(ctx, c)
			}
		}
	}()
}

// Close releases the backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}

// GetState returns the named state or ErrNotFound.
func (m *Manager) GetState(ctx context.Context, id string) (*types.State, error) {
	return m.backend.Get(ctx, id)
}

// ExistsState reports whether the named state exists.
func (m *Manager) ExistsState(ctx context.Context, id string) bool {
	_, err := m.backend.Get(ctx, id)
	return err == nil
}

// List returns all states whose id matches the glob pattern.
func (m *Manager) List(ctx context.Context, pattern string) ([]types.State, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	all, err := m.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, st := range all {
		if re.MatchString(st.ID) {
			out = append(out, st)
		}
	}
	return out, nil
}

// CreateState creates a state with an initial value unless it already exists.
// It reports whether the state was created. Creation notifies no subscribers.
func (m *Manager) CreateState(ctx context.Context, id string, initial interface{}, common types.StateCommon) (bool, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	_, err := m.backend.Get(ctx, id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	now := m.clock.Now()
	st := types.State{
		ID:         id,
		Val:        initial,
		Ack:        true,
		Ts:         now,
		LastChange: now,
		Common:     common,
	}
	if err := m.backend.Put(ctx, st); err != nil {
		return false, fmt.Errorf("failed to create state %s: %w", id, err)
	}
	m.logger.Debugw("created state", "id", id, "val", initial)
	return true, nil
}

// SetState writes val into the named state, creating it if necessary.
func (m *Manager) SetState(ctx context.Context, id string, val interface{}, ack bool) error {
	return m.SetStateAt(ctx, id, val, ack, m.clock.Now())
}

// SetStateAt writes val with an explicit timestamp, e.g. the time a sensor
// took the measurement.
func (m *Manager) SetStateAt(ctx context.Context, id string, val interface{}, ack bool, ts time.Time) error {
	m.writeMu.Lock()

	old, err := m.backend.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		m.writeMu.Unlock()
		return err
	}

	st := types.State{ID: id, Val: val, Ack: ack, Ts: ts, LastChange: ts}
	if old != nil {
		st.Common = old.Common
		if types.ValuesEqual(old.Val, val) {
			st.LastChange = old.LastChange
		}
	}

	if err := m.backend.Put(ctx, st); err != nil {
		m.writeMu.Unlock()
		return fmt.Errorf("failed to set state %s: %w", id, err)
	}

	for _, r := range m.recorders {
		r.Record(st)
	}
	m.writeMu.Unlock()

	m.metrics.StateWritten()
	m.enqueue(types.StateChange{ID: id, Old: old, New: st})
	return nil
}

// On subscribes handler to writes of all states matching pattern and
// returns a subscription id for Unsubscribe.
func (m *Manager) On(pattern string, mode ChangeMode, handler Handler) (string, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return "", err
	}

	sub := &subscription{
		id:      uuid.NewString(),
		pattern: re,
		mode:    mode,
		handler: handler,
	}

	m.subsMu.Lock()
	m.subs = append(m.subs, sub)
	m.subsMu.Unlock()

	return sub.id, nil
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (m *Manager) Unsubscribe(id string) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s.id == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return
		}
	}
}

func (m *Manager) enqueue(c types.StateChange) {
	m.queueMu.Lock()
	m.queue = append(m.queue, c)
	m.queueMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) dequeue() (types.StateChange, bool) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	if len(m.queue) == 0 {
		return types.StateChange{}, false
	}
	c := m.queue[0]
	m.queue[0] = types.StateChange{}
	m.queue = m.queue[1:]
	return c, true
}

func (m *Manager) dispatch(ctx context.Context, c types.StateChange) {
	m.subsMu.RLock()
	matched := make([]*subscription, 0, 4)
	for _, s := range m.subs {
		if !s.pattern.MatchString(c.ID) {
			continue
		}
		if s.mode == ChangeNe && !c.Changed() {
			continue
		}
		matched = append(matched, s)
	}
	m.subsMu.RUnlock()

	for _, s := range matched {
		m.invoke(ctx, s, c)
	}

	if m.distributor != nil {
		select {
		case m.distributor <- c:
		case <-ctx.Done():
		}
	}
}

func (m *Manager) invoke(ctx context.Context, s *subscription, c types.StateChange) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.HandlerPanicked()
			m.logger.Errorw("state handler panicked", "id", c.ID, "panic", r)
		}
	}()
	s.handler(ctx, c)
}
