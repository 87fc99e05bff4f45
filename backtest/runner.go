package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/miohtama/demeter/broker"
	"github.com/miohtama/demeter/journal"
)

// Runner drives one simulation: it owns the clock, walks the merged price
// timeline tick by tick and coordinates markets and the strategy.
type Runner struct {
	Broker   *broker.Broker
	Strategy Strategy
	Prices   *broker.PriceSeries
	Logger   *zap.Logger
	Observer ProgressObserver

	now        time.Time
	actions    []broker.Action
	pending    []broker.Action
	initStatus broker.AccountStatus
	statuses   []broker.AccountStatus
	finished   bool
}

// NewRunner wires a runner around an already-populated broker.
func NewRunner(b *broker.Broker, strategy Strategy, prices *broker.PriceSeries) *Runner {
	return &Runner{
		Broker:   b,
		Strategy: strategy,
		Prices:   prices,
		Logger:   zap.NewNop(),
	}
}

// validate collects every configuration problem at once instead of failing on
// the first. A run that fails validation performs no tick.
func (r *Runner) validate() error {
	var errs error
	if r.Broker == nil {
		return fmt.Errorf("runner has no broker: %w", broker.ErrConfig)
	}
	if r.Strategy == nil {
		errs = multierr.Append(errs, fmt.Errorf("runner has no strategy: %w", broker.ErrConfig))
	}
	if r.Prices == nil || r.Prices.Len() == 0 {
		errs = multierr.Append(errs, fmt.Errorf("runner has no price timeline: %w", broker.ErrConfig))
		return errs
	}
	if len(r.Broker.Markets()) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("no markets registered: %w", broker.ErrConfig))
	}

	for _, token := range r.Broker.Assets().Tokens() {
		if !r.Prices.Has(token.Name) {
			errs = multierr.Append(errs, fmt.Errorf("no price column for token %s: %w", token.Name, broker.ErrConfig))
		}
	}

	interval := r.Prices.Interval()
	for i := 1; i < r.Prices.Len(); i++ {
		gap := r.Prices.Index[i].Sub(r.Prices.Index[i-1])
		if gap <= 0 {
			errs = multierr.Append(errs, fmt.Errorf(
				"timeline is not strictly increasing at row %d: %w", i, broker.ErrConfig))
			break
		}
		if gap != interval {
			errs = multierr.Append(errs, fmt.Errorf(
				"timeline interval changes at row %d (%s, expected %s): %w", i, gap, interval, broker.ErrConfig))
			break
		}
	}

	for _, m := range r.Broker.Markets() {
		name := m.Info().Name
		if err := m.Check(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("market %s failed check: %w", name, err))
			continue
		}
		index := m.Timestamps()
		if len(index) != r.Prices.Len() {
			errs = multierr.Append(errs, fmt.Errorf(
				"market %s has %d rows, timeline has %d: %w", name, len(index), r.Prices.Len(), broker.ErrConfig))
			continue
		}
		for i, ts := range index {
			if !ts.Equal(r.Prices.Index[i]) {
				errs = multierr.Append(errs, fmt.Errorf(
					"market %s timestamp %s at row %d does not match timeline %s: %w",
					name, ts, i, r.Prices.Index[i], broker.ErrConfig))
				break
			}
		}
	}
	return errs
}

func (r *Runner) reset() {
	r.actions = nil
	r.pending = nil
	r.initStatus = broker.AccountStatus{}
	r.statuses = nil
	r.finished = false
	r.now = time.Time{}
}

// Run executes the simulation over the whole timeline. Before the first tick
// every market is bound to the timeline's first row and the pre-run account
// status is captured as the evaluation baseline; only then does the strategy
// initialize. Each tick:
//
//  1. refresh every market's status to the tick's row
//  2. evaluate the strategy's triggers, then OnTick
//  3. re-refresh markets the strategy dirtied
//  4. run every market's settlement Update
//  5. snapshot the account status
//  6. hand the snapshot to AfterTick, deliver the tick's recorded actions
//     to Notify and report progress
//
// Any error aborts the run; markets guarantee the failing action itself was
// not applied, but earlier ticks stand.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}
	r.reset()

	r.now = r.Prices.Index[0]
	for _, m := range r.Broker.Markets() {
		if err := m.RefreshStatus(r.Prices.Index[0], r.Prices.Rows[0]); err != nil {
			return fmt.Errorf("refresh market %s: %w", m.Info().Name, err)
		}
	}
	baseline, err := r.Broker.AccountStatus(r.Prices.Index[0], r.Prices.Rows[0])
	if err != nil {
		return err
	}
	r.initStatus = baseline

	r.Broker.SetRecorder(func(a broker.Action) {
		a.Base().Timestamp = r.now
		r.actions = append(r.actions, a)
		r.pending = append(r.pending, a)
	})

	if err := r.Strategy.Initialize(&Context{Broker: r.Broker, Prices: r.Prices, Logger: r.Logger}); err != nil {
		return fmt.Errorf("initialize strategy: %w", err)
	}

	total := r.Prices.Len()
	r.Logger.Info("run starting",
		zap.Int("ticks", total),
		zap.Time("start", r.Prices.Index[0]),
		zap.Time("end", r.Prices.Index[total-1]))
	began := time.Now()

	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ts := r.Prices.Index[i]
		prices := r.Prices.Rows[i]
		r.now = ts

		for _, m := range r.Broker.Markets() {
			if err := m.RefreshStatus(ts, prices); err != nil {
				return fmt.Errorf("refresh market %s: %w", m.Info().Name, err)
			}
		}

		snap := Snapshot{Timestamp: ts, Row: i, Prices: prices}
		for _, t := range r.Strategy.Triggers() {
			if t.When(snap) {
				if err := t.Do(snap); err != nil {
					return fmt.Errorf("trigger at %s: %w", ts, err)
				}
			}
		}
		if err := r.Strategy.OnTick(snap); err != nil {
			return fmt.Errorf("on tick at %s: %w", ts, err)
		}

		for _, m := range r.Broker.Markets() {
			if m.Dirty() {
				if err := m.RefreshStatus(ts, prices); err != nil {
					return fmt.Errorf("re-refresh market %s: %w", m.Info().Name, err)
				}
			}
		}
		for _, m := range r.Broker.Markets() {
			if err := m.Update(); err != nil {
				return fmt.Errorf("update market %s: %w", m.Info().Name, err)
			}
		}

		status, err := r.Broker.AccountStatus(ts, prices)
		if err != nil {
			return err
		}
		r.statuses = append(r.statuses, status)

		if err := r.Strategy.AfterTick(snap, status); err != nil {
			return fmt.Errorf("after tick at %s: %w", ts, err)
		}
		for _, a := range r.pending {
			r.Strategy.Notify(a)
		}
		r.pending = nil
		if r.Observer != nil {
			r.Observer(i+1, total)
		}
	}

	if err := r.Strategy.Finalize(); err != nil {
		return fmt.Errorf("finalize strategy: %w", err)
	}
	r.finished = true
	r.Logger.Info("run finished",
		zap.Duration("elapsed", time.Since(began)),
		zap.Int("actions", len(r.actions)))
	return nil
}

// Actions returns every recorded action in execution order.
func (r *Runner) Actions() []broker.Action { return r.actions }

// InitialStatus returns the pre-run account snapshot, bound to the first
// timeline row before the strategy initialized.
func (r *Runner) InitialStatus() broker.AccountStatus { return r.initStatus }

// Statuses returns the per-tick account snapshots.
func (r *Runner) Statuses() []broker.AccountStatus { return r.statuses }

// Metrics evaluates the finished run. Calling it before Run completes returns
// ErrNotFinished.
func (r *Runner) Metrics() (Metrics, error) {
	if !r.finished {
		return Metrics{}, broker.ErrNotFinished
	}
	series := make([]broker.AccountStatus, 0, len(r.statuses)+1)
	series = append(series, r.initStatus)
	series = append(series, r.statuses...)
	m := Evaluate(series, r.Prices.Interval())
	m.Actions = len(r.actions)
	return m, nil
}

// Save writes the run's actions and status history to a journal. The run
// must have finished.
func (r *Runner) Save(j journal.Journal) error {
	if !r.finished {
		return broker.ErrNotFinished
	}
	for _, a := range r.actions {
		rec, err := journal.NewActionRecord(a)
		if err != nil {
			return err
		}
		if err := j.RecordAction(rec); err != nil {
			return err
		}
	}
	for _, s := range r.statuses {
		rec, err := journal.NewStatusRecord(s)
		if err != nil {
			return err
		}
		if err := j.RecordStatus(rec); err != nil {
			return err
		}
	}
	return nil
}
