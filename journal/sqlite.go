package journal

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordAction(a ActionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO actions (action_id, time, market, kind, details)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Timestamp, a.Market, a.Kind, string(a.Details),
	)
	return err
}

func (j *SQLiteJournal) RecordStatus(s StatusRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO statuses (time, net_value, details)
		VALUES (?, ?, ?)`,
		s.Timestamp, s.NetValue, string(s.Details),
	)
	return err
}

// ListActionsBetween returns actions in [start, end), ordered by time.
func (j *SQLiteJournal) ListActionsBetween(start, end time.Time) ([]ActionRecord, error) {
	rows, err := j.db.Query(`
		SELECT action_id, time, market, kind, details
		FROM actions WHERE time >= ? AND time < ? ORDER BY time`,
		start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var rec ActionRecord
		var details string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Market, &rec.Kind, &details); err != nil {
			return nil, err
		}
		rec.Details = json.RawMessage(details)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListStatusesBetween returns account snapshots in [start, end), ordered by
// time.
func (j *SQLiteJournal) ListStatusesBetween(start, end time.Time) ([]StatusRecord, error) {
	rows, err := j.db.Query(`
		SELECT time, net_value, details
		FROM statuses WHERE time >= ? AND time < ? ORDER BY time`,
		start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusRecord
	for rows.Next() {
		var rec StatusRecord
		var details string
		if err := rows.Scan(&rec.Timestamp, &rec.NetValue, &details); err != nil {
			return nil, err
		}
		rec.Details = json.RawMessage(details)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
