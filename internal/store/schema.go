package store

import "github.com/jmoiron/sqlx"

// Timestamps are stored as unix seconds so values survive any driver's text
// affinity untouched.
const schema = `
CREATE TABLE IF NOT EXISTS cards (
	card_id    TEXT NOT NULL,
	course_id  TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'question',
	body       TEXT NOT NULL,
	tags       TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (course_id, card_id)
);

CREATE TABLE IF NOT EXISTS scheduled_reviews (
	review_id     TEXT PRIMARY KEY,
	card_id       TEXT NOT NULL,
	course_id     TEXT NOT NULL,
	review_time   INTEGER NOT NULL,
	scheduled_at  INTEGER NOT NULL,
	scheduled_for TEXT NOT NULL,
	agent_id      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_reviews_due ON scheduled_reviews (course_id, review_time);

CREATE TABLE IF NOT EXISTS card_histories (
	course_id          TEXT NOT NULL,
	card_id            TEXT NOT NULL,
	kind               TEXT NOT NULL DEFAULT 'question',
	records            TEXT NOT NULL DEFAULT '[]',
	best_interval_secs INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (course_id, card_id)
);

CREATE TABLE IF NOT EXISTS card_elo (
	course_id     TEXT NOT NULL,
	card_id       TEXT NOT NULL,
	global        REAL NOT NULL,
	tags          TEXT NOT NULL DEFAULT '{}',
	attempt_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (course_id, card_id)
);

CREATE TABLE IF NOT EXISTS registrations (
	course_id TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	elo       REAL NOT NULL,
	tags      TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (course_id, user_id)
);

CREATE TABLE IF NOT EXISTS user_outcomes (
	outcome_id    TEXT PRIMARY KEY,
	course_id     TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	period_start  INTEGER NOT NULL,
	period_end    INTEGER NOT NULL,
	outcome_value REAL NOT NULL,
	deviations    TEXT NOT NULL DEFAULT '{}',
	metadata      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_outcomes_course ON user_outcomes (course_id, period_end);

CREATE TABLE IF NOT EXISTS strategy_states (
	strategy_id TEXT PRIMARY KEY,
	state       TEXT NOT NULL
);
`

func migrate(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	return err
}
