// journal/journal.go
package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/miohtama/demeter/broker"
	"github.com/miohtama/demeter/internal/id"
)

// ActionRecord is one persisted market action. Details holds the full
// action JSON, since each action kind carries different fields.
type ActionRecord struct {
	ID        string
	Timestamp time.Time
	Market    string
	Kind      string
	Details   json.RawMessage
}

// StatusRecord is one persisted per-tick account snapshot.
type StatusRecord struct {
	Timestamp time.Time
	NetValue  float64
	Details   json.RawMessage
}

// Journal persists a run's audit trail.
type Journal interface {
	RecordAction(ActionRecord) error
	RecordStatus(StatusRecord) error
	Close() error
}

// NewActionRecord flattens a broker action for persistence.
func NewActionRecord(a broker.Action) (ActionRecord, error) {
	details, err := json.Marshal(a)
	if err != nil {
		return ActionRecord{}, fmt.Errorf("marshal action: %w", err)
	}
	base := a.Base()
	return ActionRecord{
		ID:        id.New(),
		Timestamp: base.Timestamp,
		Market:    base.Market,
		Kind:      string(base.Kind),
		Details:   details,
	}, nil
}

// NewStatusRecord flattens an account snapshot for persistence.
func NewStatusRecord(s broker.AccountStatus) (StatusRecord, error) {
	details, err := json.Marshal(s)
	if err != nil {
		return StatusRecord{}, fmt.Errorf("marshal status: %w", err)
	}
	return StatusRecord{
		Timestamp: s.Timestamp,
		NetValue:  s.NetValue.InexactFloat64(),
		Details:   details,
	}, nil
}
