// journal/csv.go
package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

type CSVJournal struct {
	actions  *csv.Writer
	statuses *csv.Writer
	af, sf   *os.File
}

func NewCSV(actionsPath, statusesPath string) (*CSVJournal, error) {
	af, err := os.Create(actionsPath)
	if err != nil {
		return nil, err
	}
	sf, err := os.Create(statusesPath)
	if err != nil {
		return nil, err
	}

	aw := csv.NewWriter(af)
	sw := csv.NewWriter(sf)

	if err := aw.Write([]string{"action_id", "time", "market", "kind", "details"}); err != nil {
		return nil, err
	}
	if err := sw.Write([]string{"time", "net_value", "details"}); err != nil {
		return nil, err
	}

	aw.Flush()
	if err := aw.Error(); err != nil {
		return nil, err
	}
	sw.Flush()
	if err := sw.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{aw, sw, af, sf}, nil
}

func (j *CSVJournal) RecordAction(a ActionRecord) error {
	err := j.actions.Write([]string{
		a.ID,
		a.Timestamp.Format(time.RFC3339),
		a.Market,
		a.Kind,
		string(a.Details),
	})
	if err != nil {
		return err
	}

	j.actions.Flush()
	return j.actions.Error()
}

func (j *CSVJournal) RecordStatus(s StatusRecord) error {
	err := j.statuses.Write([]string{
		s.Timestamp.Format(time.RFC3339),
		strconv.FormatFloat(s.NetValue, 'f', 6, 64),
		string(s.Details),
	})
	if err != nil {
		return err
	}

	j.statuses.Flush()
	return j.statuses.Error()
}

func (j *CSVJournal) Close() error {
	j.actions.Flush()
	if err := j.actions.Error(); err != nil {
		return err
	}
	j.statuses.Flush()
	if err := j.statuses.Error(); err != nil {
		return err
	}

	if err := j.af.Close(); err != nil {
		return err
	}
	if err := j.sf.Close(); err != nil {
		return err
	}
	return nil
}
