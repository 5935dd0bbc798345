package history

// Schema is the cycle history schema. One row per monitoring cycle plus
// one row per removed layout, so removals stay queryable after the mail
// is gone.
const Schema = `
CREATE TABLE IF NOT EXISTS cycle_log (
    id            TEXT PRIMARY KEY,
    started_at    INTEGER NOT NULL,
    finished_at   INTEGER NOT NULL,
    status        TEXT NOT NULL,
    layouts       INTEGER NOT NULL DEFAULT 0,
    added         INTEGER NOT NULL DEFAULT 0,
    removed       INTEGER NOT NULL DEFAULT 0,
    saved         INTEGER NOT NULL DEFAULT 0,
    snapshot_path TEXT NOT NULL DEFAULT '',
    error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_cycle_log_time ON cycle_log(started_at DESC);

CREATE TABLE IF NOT EXISTS removal_log (
    cycle_id TEXT NOT NULL REFERENCES cycle_log(id) ON DELETE CASCADE,
    key      TEXT NOT NULL,
    label    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_removal_log_cycle ON removal_log(cycle_id);
`
