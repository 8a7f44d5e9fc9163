// SPDX-License-Identifier: MIT
package storage

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time TIMESTAMP NOT NULL,
    end_time   TIMESTAMP,
    source     TEXT      NOT NULL,
    config     TEXT,
    error      TEXT
);

CREATE TABLE IF NOT EXISTS channels (
    session_id  INTEGER NOT NULL REFERENCES sessions (id),
    source_id   TEXT    NOT NULL,
    channel     INTEGER NOT NULL,
    channel_id  TEXT    NOT NULL,
    PRIMARY KEY (session_id, source_id, channel)
);

CREATE TABLE IF NOT EXISTS samples (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES sessions (id),
    source_id  TEXT    NOT NULL,
    channel    INTEGER NOT NULL,
    x          REAL    NOT NULL,
    y          REAL    NOT NULL
);

CREATE INDEX IF NOT EXISTS samples_channel_idx ON samples (session_id, source_id, channel);

CREATE TABLE IF NOT EXISTS controls (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  INTEGER   NOT NULL REFERENCES sessions (id),
    source_id   TEXT      NOT NULL,
    channel     INTEGER   NOT NULL,
    word        TEXT      NOT NULL,
    payload     TEXT,
    text        TEXT      NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS diagnostics (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  INTEGER   NOT NULL REFERENCES sessions (id),
    source_id   TEXT      NOT NULL,
    channel     INTEGER   NOT NULL,
    message     TEXT      NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);`

	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      source,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?)`

	finishSessionSQL = `
UPDATE sessions
SET end_time = ?,
    error    = ?
WHERE id = ?`

	selectSessionSQL = `
SELECT id,
       start_time,
       end_time,
       source,
       config,
       error
FROM sessions
WHERE id = ?`

	insertChannelSQL = `
INSERT OR IGNORE INTO channels (session_id,
                                source_id,
                                channel,
                                channel_id)
VALUES (?, ?, ?, ?)`

	insertSampleSQL = `
INSERT INTO samples (session_id,
                     source_id,
                     channel,
                     x,
                     y)
VALUES (?, ?, ?, ?, ?)`

	selectSamplesSQL = `
SELECT x,
       y
FROM samples
WHERE session_id = ?
  AND channel = ?
ORDER BY id`

	insertControlSQL = `
INSERT INTO controls (session_id,
                      source_id,
                      channel,
                      word,
                      payload,
                      text,
                      recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertDiagnosticSQL = `
INSERT INTO diagnostics (session_id,
                         source_id,
                         channel,
                         message,
                         recorded_at)
VALUES (?, ?, ?, ?, ?)`
)
