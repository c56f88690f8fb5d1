package store

// migration holds a single schema migration with its target version. The
// SQL is portable between SQLite and PostgreSQL.
type migration struct {
	version    int
	statements []string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS accounts (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	provider       TEXT NOT NULL,
	nickname       TEXT NOT NULL DEFAULT '',
	username       TEXT NOT NULL DEFAULT '',
	organization   TEXT NOT NULL DEFAULT '',
	application_id TEXT NOT NULL DEFAULT '',
	base_url       TEXT NOT NULL DEFAULT '',
	credential     TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id)`,
			`CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	account_id     TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	kind           TEXT NOT NULL,
	natural_key    TEXT NOT NULL,
	project        TEXT NOT NULL DEFAULT '',
	definition_id  INTEGER NOT NULL DEFAULT 0,
	environment_id INTEGER NOT NULL DEFAULT 0,
	pipeline       TEXT NOT NULL DEFAULT '',
	environment    TEXT NOT NULL DEFAULT '',
	branch         TEXT NOT NULL DEFAULT '',
	owner          TEXT NOT NULL DEFAULT '',
	repo           TEXT NOT NULL DEFAULT '',
	pr_count       INTEGER NOT NULL DEFAULT 0,
	metric         TEXT NOT NULL DEFAULT '',
	aggregation    TEXT NOT NULL DEFAULT '',
	timespan       TEXT NOT NULL DEFAULT '',
	metric_start   TIMESTAMP,
	metric_end     TIMESTAMP,
	path           TEXT NOT NULL DEFAULT '',
	nickname       TEXT NOT NULL DEFAULT '',
	value          TEXT NOT NULL DEFAULT '',
	prev_value     TEXT NOT NULL DEFAULT '',
	has_changed    BOOLEAN NOT NULL DEFAULT FALSE,
	last_update    TIMESTAMP,
	uses_webhook   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMP NOT NULL
)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_natural_key ON tasks(account_id, natural_key)`,
			`CREATE TABLE IF NOT EXISTS status_colors (
	id      TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	status  TEXT NOT NULL,
	red     INTEGER NOT NULL DEFAULT 0,
	green   INTEGER NOT NULL DEFAULT 0,
	blue    INTEGER NOT NULL DEFAULT 0,
	UNIQUE (user_id, status)
)`,
			`CREATE TABLE IF NOT EXISTS devices (
	id           TEXT PRIMARY KEY,
	uuid         TEXT NOT NULL UNIQUE,
	user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name         TEXT NOT NULL DEFAULT '',
	last_contact TIMESTAMP,
	created_at   TIMESTAMP NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS status_lights (
	device_id TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
	slot      INTEGER NOT NULL,
	task_id   TEXT REFERENCES tasks(id) ON DELETE SET NULL,
	PRIMARY KEY (device_id, slot)
)`,
			`CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	kind       TEXT NOT NULL,
	nickname   TEXT NOT NULL DEFAULT '',
	text       TEXT NOT NULL DEFAULT '',
	dateformat TEXT NOT NULL DEFAULT '',
	timezone   TEXT NOT NULL DEFAULT '',
	task_id    TEXT REFERENCES tasks(id) ON DELETE SET NULL,
	choices    TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS gauges (
	id        TEXT PRIMARY KEY,
	user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name      TEXT NOT NULL DEFAULT '',
	min_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	task_id   TEXT REFERENCES tasks(id) ON DELETE SET NULL
)`,
		},
	},
}
