package backtest

import (
	"time"

	"go.uber.org/zap"

	"github.com/miohtama/demeter/broker"
)

// Context is handed to the strategy once at initialization and stays valid
// for the whole run. Strategies reach markets through the broker and read the
// merged price table directly.
type Context struct {
	Broker *broker.Broker
	Prices *broker.PriceSeries
	Logger *zap.Logger
}

// Snapshot is the per-tick view a strategy receives: the simulation clock,
// the row offset into the timeline and that row's token prices.
type Snapshot struct {
	Timestamp time.Time
	Row       int
	Prices    broker.PriceRow
}

// Strategy is the user-supplied trading logic driven by the run loop.
type Strategy interface {
	// Initialize runs once after validation, before the first tick.
	Initialize(ctx *Context) error

	// OnTick runs every tick after market statuses are refreshed, before
	// settlement.
	OnTick(s Snapshot) error

	// AfterTick runs at the end of each tick with the post-settlement
	// account status.
	AfterTick(s Snapshot, status broker.AccountStatus) error

	// Finalize runs once after the last tick.
	Finalize() error

	// Notify delivers every recorded action as it happens.
	Notify(action broker.Action)

	// Triggers returns scheduled work evaluated before OnTick each tick.
	Triggers() []*Trigger
}

// Trigger is scheduled strategy work: Do fires on every tick for which When
// returns true.
type Trigger struct {
	When func(s Snapshot) bool
	Do   func(s Snapshot) error
}

// NewPeriodicTrigger fires do every interval, anchored to the first tick it
// sees.
func NewPeriodicTrigger(interval time.Duration, do func(s Snapshot) error) *Trigger {
	var next time.Time
	return &Trigger{
		When: func(s Snapshot) bool {
			if next.IsZero() {
				next = s.Timestamp
			}
			if s.Timestamp.Before(next) {
				return false
			}
			for !next.After(s.Timestamp) {
				next = next.Add(interval)
			}
			return true
		},
		Do: do,
	}
}

// NewAtTrigger fires do on the listed timestamps.
func NewAtTrigger(times []time.Time, do func(s Snapshot) error) *Trigger {
	at := make(map[time.Time]struct{}, len(times))
	for _, ts := range times {
		at[ts] = struct{}{}
	}
	return &Trigger{
		When: func(s Snapshot) bool {
			_, ok := at[s.Timestamp]
			return ok
		},
		Do: do,
	}
}

// BaseStrategy is a no-op Strategy for embedding; concrete strategies
// override only the hooks they need.
type BaseStrategy struct {
	Ctx      *Context
	triggers []*Trigger
}

func (b *BaseStrategy) Initialize(ctx *Context) error { b.Ctx = ctx; return nil }

func (b *BaseStrategy) OnTick(Snapshot) error { return nil }

func (b *BaseStrategy) AfterTick(Snapshot, broker.AccountStatus) error { return nil }

func (b *BaseStrategy) Finalize() error { return nil }

func (b *BaseStrategy) Notify(broker.Action) {}

func (b *BaseStrategy) Triggers() []*Trigger { return b.triggers }

// AddTrigger registers scheduled work, evaluated in registration order.
func (b *BaseStrategy) AddTrigger(t *Trigger) { b.triggers = append(b.triggers, t) }

// ProgressObserver is called once per completed tick.
type ProgressObserver func(done, total int)
