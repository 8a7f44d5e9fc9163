// SPDX-License-Identifier: MIT
/*
Package storage records a monitoring session in a SQLite database.

A Recorder is a transport sink: every event it receives is written to the
session created by CreateSession. Batches become one samples row per point in
a single transaction, directives land in controls, decode problems in
diagnostics and the first Completed event closes the session.
*/
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	_ "github.com/mattn/go-sqlite3"

	"signalmon/internal/event"
	"signalmon/internal/log"
	"signalmon/internal/transport"
)

// ErrNoSession is returned by Send before CreateSession succeeded.
var ErrNoSession = errors.New("storage: no active session")

// Session is one recorded run.
type Session struct {
	ID        int64
	StartTime time.Time
	EndTime   sql.NullTime
	Source    string
	Config    sql.NullString
	Error     sql.NullString
}

// Point is one stored sample.
type Point struct {
	X, Y float64
}

// Recorder writes events to SQLite.
type Recorder struct {
	dbPath string
	log    *log.Logger

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	mu        sync.Mutex
	sessionID int64
	finished  bool
	samples   uint64

	closeOnce sync.Once
	closeErr  error
}

// NewRecorder returns a Recorder for the database at dbPath. The file and its
// schema are created on first use.
func NewRecorder(dbPath string) *Recorder {
	return &Recorder{dbPath: dbPath, log: log.New("storage")}
}

func (r *Recorder) getDB() (*sql.DB, error) {
	r.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", r.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			r.dbErr = fmt.Errorf("opening connection: %w", err)
			return
		}
		// SQLite serializes writers anyway.
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			r.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		r.db = db
	})
	return r.db, r.dbErr
}

// CreateSession starts a new session for source and makes it the target of
// Send. config is stored as JSON unless it already is a string or []byte.
func (r *Recorder) CreateSession(ctx context.Context, source string, config any) (sessionID int64, err error) {
	var configData sql.NullString
	switch c := config.(type) {
	case nil:
	case string:
		configData = sql.NullString{String: c, Valid: true}
	case []byte:
		configData = sql.NullString{String: string(c), Valid: true}
	default:
		p, err := json.Marshal(c)
		if err != nil {
			return 0, fmt.Errorf("marshaling config: %w", err)
		}
		configData = sql.NullString{String: string(p), Valid: true}
	}

	db, err := r.getDB()
	if err != nil {
		return 0, fmt.Errorf("getting connection: %w", err)
	}

	result, err := db.ExecContext(ctx, insertSessionSQL, source, configData)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	if sessionID, err = result.LastInsertId(); err != nil {
		return 0, fmt.Errorf("getting session ID: %w", err)
	}

	r.mu.Lock()
	r.sessionID, r.finished, r.samples = sessionID, false, 0
	r.mu.Unlock()
	r.log.Infof("recording session %d of %s to %s", sessionID, source, r.dbPath)
	return sessionID, nil
}

// Send writes ev to the active session.
func (r *Recorder) Send(ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessionID == 0 {
		return ErrNoSession
	}

	db, err := r.getDB()
	if err != nil {
		return err
	}

	ctx := context.Background()
	src := ev.SourceID().String()
	now := time.Now().UTC()

	switch e := ev.(type) {
	case event.Batch:
		return r.insertBatch(ctx, db, src, e)
	case event.Control:
		var payload sql.NullString
		if e.Command.Payload != nil {
			payload = sql.NullString{String: string(e.Command.Payload), Valid: true}
		}
		_, err = db.ExecContext(ctx, insertControlSQL, r.sessionID, src, e.Channel,
			e.Command.Word.String(), payload, e.Command.Text, now)
	case event.ChannelCreated:
		_, err = db.ExecContext(ctx, insertChannelSQL, r.sessionID, src, e.Channel, e.ID.String())
	case event.Diagnostic:
		_, err = db.ExecContext(ctx, insertDiagnosticSQL, r.sessionID, src, e.Channel, errString(e.Err), now)
	case event.Completed:
		// A session spans a source and its derived sources; the first
		// completion ends it.
		if r.finished {
			return nil
		}
		var msg sql.NullString
		if e.Err != nil {
			msg = sql.NullString{String: e.Err.Error(), Valid: true}
		}
		if _, err = db.ExecContext(ctx, finishSessionSQL, now, msg, r.sessionID); err == nil {
			r.finished = true
			r.log.Infof("session %d closed, %s samples", r.sessionID, humanize.Comma(int64(r.samples)))
		}
	}
	if err != nil {
		return fmt.Errorf("recording %T: %w", ev, err)
	}
	return nil
}

func (r *Recorder) insertBatch(ctx context.Context, db *sql.DB, src string, b event.Batch) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSampleSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for i := range b.Y {
		if _, err = stmt.ExecContext(ctx, r.sessionID, src, b.Channel, b.X[i], b.Y[i]); err != nil {
			return fmt.Errorf("inserting sample: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	r.samples += uint64(len(b.Y))
	return nil
}

// Session returns a session by its ID.
func (r *Recorder) Session(ctx context.Context, id int64) (*Session, error) {
	db, err := r.getDB()
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}

	var s Session
	err = db.QueryRowContext(ctx, selectSessionSQL, id).
		Scan(&s.ID, &s.StartTime, &s.EndTime, &s.Source, &s.Config, &s.Error)
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return &s, nil
}

// Samples returns the points recorded for channel in a session, in arrival
// order.
func (r *Recorder) Samples(ctx context.Context, sessionID int64, channel int) (points []Point, err error) {
	db, err := r.getDB()
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectSamplesSQL, sessionID, channel)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var p Point
		if err = rows.Scan(&p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Count returns the number of rows of table in a session. table is one of
// channels, samples, controls or diagnostics.
func (r *Recorder) Count(ctx context.Context, table string, sessionID int64) (int, error) {
	switch table {
	case "channels", "samples", "controls", "diagnostics":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	db, err := r.getDB()
	if err != nil {
		return 0, fmt.Errorf("getting connection: %w", err)
	}
	var n int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE session_id = ?", sessionID).Scan(&n)
	return n, err
}

// Close closes the database.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.db != nil {
			r.closeErr = r.db.Close()
		}
	})
	return r.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ transport.Transport = (*Recorder)(nil)
