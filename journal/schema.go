// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS actions (
	action_id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	market TEXT NOT NULL,
	kind TEXT NOT NULL,
	details TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS statuses (
	time DATETIME NOT NULL,
	net_value REAL NOT NULL,
	details TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_actions_time ON actions(time);
CREATE INDEX IF NOT EXISTS idx_statuses_time ON statuses(time);
`
