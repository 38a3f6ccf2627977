package store

const schema = `
CREATE TABLE IF NOT EXISTS apps (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    track_id   INTEGER NOT NULL,
    bundle_id  TEXT NOT NULL DEFAULT '',
    country    TEXT NOT NULL DEFAULT 'us',
    created_at DATETIME NOT NULL,
    UNIQUE(track_id, country)
);

CREATE TABLE IF NOT EXISTS keywords (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    keyword    TEXT NOT NULL,
    app_id     INTEGER REFERENCES apps(id) ON DELETE CASCADE,
    created_at DATETIME NOT NULL,
    UNIQUE(keyword, app_id)
);

CREATE INDEX IF NOT EXISTS idx_keywords_app ON keywords(app_id);

CREATE TABLE IF NOT EXISTS results (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    keyword_id     INTEGER NOT NULL REFERENCES keywords(id) ON DELETE CASCADE,
    country        TEXT NOT NULL,
    popularity     INTEGER,
    difficulty     INTEGER NOT NULL,
    interpretation TEXT NOT NULL DEFAULT '',
    app_rank       INTEGER,
    breakdown      TEXT NOT NULL DEFAULT '{}',
    competitors    TEXT NOT NULL DEFAULT '[]',
    downloads      TEXT NOT NULL DEFAULT '{}',
    searched_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_pair ON results(keyword_id, country);
CREATE INDEX IF NOT EXISTS idx_results_searched ON results(searched_at);
CREATE INDEX IF NOT EXISTS idx_results_difficulty ON results(difficulty);
`
