package option

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/miohtama/demeter/broker"
)

// settleExpired walks every open position whose expiry has passed and settles
// it. In-the-money positions deliver amount x (price diff / underlying),
// rounded to fee precision and net of the delivery fee; delivery is skipped
// when the fee would exceed the proceeds. Each settled position records
// exactly one action, deliver or expire, and is removed either way.
func (m *Market) settleExpired() error {
	names := make([]string, 0, len(m.positions))
	for name, pos := range m.positions {
		if !m.statusTime.Before(pos.Expiry) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		pos := m.positions[name]
		inst, ok := m.current[name]
		if !ok {
			return fmt.Errorf("expired position %s missing from current order book", name)
		}

		var diff decimal.Decimal
		inMoney := false
		switch {
		case pos.Kind == Put && pos.Strike.GreaterThan(inst.UnderlyingPrice):
			diff = pos.Strike.Sub(inst.UnderlyingPrice)
			inMoney = true
		case pos.Kind == Call && pos.Strike.LessThan(inst.UnderlyingPrice):
			diff = inst.UnderlyingPrice.Sub(pos.Strike)
			inMoney = true
		}

		mark := inst.MarkPrice.Round(m.cfg.FeePlaces)
		delivered := false
		if inMoney {
			fee := m.deliveryFee(pos.Amount, pos.Amount.Mul(mark))
			deliverAmount := pos.Amount.Mul(diff.Div(inst.UnderlyingPrice)).Round(m.cfg.FeePlaces)
			if deliverAmount.GreaterThan(fee) {
				income := deliverAmount.Sub(fee)
				m.broker.Assets().Credit(m.token, income)
				m.broker.Record(&DeliverAction{
					ActionBase:      broker.ActionBase{Kind: broker.ActionDeliver, Market: m.info.Name},
					Instrument:      name,
					Kind:            pos.Kind,
					Amount:          pos.Amount,
					MarkPrice:       mark,
					Strike:          pos.Strike,
					UnderlyingPrice: inst.UnderlyingPrice.Round(m.cfg.FeePlaces),
					DeliverAmount:   deliverAmount,
					Fee:             fee,
					Income:          income,
				})
				delivered = true
			}
		}

		if !delivered {
			m.broker.Record(&ExpireAction{
				ActionBase:      broker.ActionBase{Kind: broker.ActionExpire, Market: m.info.Name},
				Instrument:      name,
				Kind:            pos.Kind,
				Amount:          pos.Amount,
				MarkPrice:       mark,
				Strike:          pos.Strike,
				UnderlyingPrice: inst.UnderlyingPrice.Round(m.cfg.FeePlaces),
			})
		}

		m.logger.Debug("settled expired position",
			zap.String("instrument", name),
			zap.Bool("delivered", delivered))
		delete(m.positions, name)
	}
	return nil
}
