package storage

const Schema = `
CREATE TABLE IF NOT EXISTS items (
    item_id TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    title TEXT,
    source TEXT,
    published_at INTEGER,
    vec_id TEXT,
    content_hash TEXT,
    last_embedded_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_items_source ON items(source);
CREATE INDEX IF NOT EXISTS idx_items_published ON items(published_at DESC);

CREATE TABLE IF NOT EXISTS click_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL DEFAULT 'default',
    source_id TEXT,
    item_id TEXT NOT NULL,
    url TEXT,
    title TEXT,
    clicked_at INTEGER NOT NULL,
    UNIQUE(user_id, item_id, clicked_at)
);

CREATE INDEX IF NOT EXISTS idx_click_events_clicked_at ON click_events(clicked_at DESC);

CREATE TABLE IF NOT EXISTS topics (
    token TEXT PRIMARY KEY,
    wt_long REAL NOT NULL DEFAULT 0,
    wt_short REAL NOT NULL DEFAULT 0,
    last_updated INTEGER
);

CREATE TABLE IF NOT EXISTS model_params (
    key TEXT PRIMARY KEY,
    val TEXT
);

CREATE TABLE IF NOT EXISTS rec_logs (
    rec_id TEXT NOT NULL,
    item_id TEXT NOT NULL,
    score REAL,
    served_at INTEGER NOT NULL,
    clicked INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (rec_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_rec_logs_item_served ON rec_logs(item_id, served_at DESC);

CREATE TABLE IF NOT EXISTS feeds (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    url TEXT NOT NULL UNIQUE,
    etag TEXT,
    last_modified TEXT,
    last_fetched INTEGER,
    last_error TEXT,
    enabled BOOLEAN NOT NULL DEFAULT 1
);
`
