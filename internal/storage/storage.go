// Package storage persists monitoring sessions, streaming classifier
// verdicts and offline detection reports in a SQLite database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rf-watch/gnss-sentry/internal/classify"
	"github.com/rf-watch/gnss-sentry/internal/detect"
)

// Store manages interference monitoring data. All writes are atomic;
// a report and its detector entries land in one transaction.
type Store interface {
	// CreateSession initializes a new monitoring session and returns
	// its unique identifier. Config can be a string, []byte, or any
	// JSON-serializable value.
	CreateSession(ctx context.Context, receiver, source string, config any) (sessionID int64, err error)

	// Session retrieves one session by ID, nil if not found.
	Session(ctx context.Context, id int64) (*Session, error)

	// Sessions returns all sessions ordered by start time.
	Sessions(ctx context.Context) ([]*Session, error)

	// StoreVerdict saves one streaming classifier verdict.
	StoreVerdict(ctx context.Context, sessionID int64, at time.Time, v classify.Verdict) (verdictID int64, err error)

	// StoreReport saves every detector entry of an offline report in a
	// single transaction.
	StoreReport(ctx context.Context, sessionID int64, report *detect.Report) error

	// Verdicts returns a session's stored verdicts ordered by time.
	Verdicts(ctx context.Context, sessionID int64) ([]*VerdictRecord, error)

	// Close releases all database connections. The store cannot be
	// reused afterwards; calling Close again is a no-op.
	Close() error
}

// SqliteStore implements Store on a single SQLite database file. The
// write and read connections are opened lazily and independently, so a
// pure reader never creates the schema's WAL files.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the SQLite database at
// dbPath. The file and schema are created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, receiver, source string, config any) (sessionID int64, err error) {
	var configData sql.NullString

	if config != nil {
		switch v := config.(type) {
		case string:
			configData.Valid = true
			configData.String = v

		case []byte:
			configData.Valid = true
			configData.String = string(v)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, receiver, source, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var sess Session
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&sess.ID, &sess.StartTime, &sess.Receiver, &sess.Source, &config); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}
	if config.Valid {
		sess.Config = &config.String
	}

	return &sess, nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		var config sql.NullString
		if err = rows.Scan(&sess.ID, &sess.StartTime, &sess.Receiver, &sess.Source, &config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		if config.Valid {
			sess.Config = &config.String
		}
		sessions = append(sessions, &sess)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreVerdict(ctx context.Context, sessionID int64, at time.Time, v classify.Verdict) (verdictID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertVerdictSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(
		ctx,
		sessionID,
		at.UTC(),
		v.Jammed,
		string(v.Severity),
		nullString(string(v.Type)),
		nullString(string(v.Method)),
		v.Confidence,
		v.Stats.Satellites,
		v.Stats.TrackedSatellites,
		v.Stats.AvgCN0DBHz,
		v.Stats.CN0StdDB,
		v.Stats.CN0VariationDB,
		v.Stats.AvgDopplerHz,
		v.Stats.DopplerStdHz,
		v.Stats.DopplerVariationHz,
		v.Stats.Correlation,
	)
	if err != nil {
		err = fmt.Errorf("inserting verdict: %w", err)
		return
	}

	verdictID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting verdict ID: %w", err)
	}
	return
}

const insertDetectionSQL = `
    INSERT INTO detections (
        session_id,
        timestamp,
        detector,
        detected,
        confidence,
        detail,
        error
    )
    VALUES `

func (s *SqliteStore) StoreReport(ctx context.Context, sessionID int64, report *detect.Report) (err error) {
	if report == nil || len(report.Detections) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	values := make([]interface{}, 0, len(report.Detections)*7)
	valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?)"

	var sb strings.Builder
	sb.WriteString(insertDetectionSQL)

	first := true
	for _, kind := range detect.Kinds {
		result, ok := report.Detections[kind]
		if !ok {
			continue
		}

		detail, mErr := json.Marshal(result)
		if mErr != nil {
			return fmt.Errorf("marshaling %s result: %w", kind, mErr)
		}

		values = append(values,
			sessionID,
			report.Timestamp.UTC(),
			string(kind),
			result.Detected,
			result.Confidence,
			string(detail),
			nullString(result.Err),
		)

		if !first {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
		first = false
	}

	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting detections: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) Verdicts(ctx context.Context, sessionID int64) (verdicts []*VerdictRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectVerdictsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying verdicts: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var row verdictRow
		if err = rows.Scan(
			&row.ID,
			&row.SessionID,
			&row.Timestamp,
			&row.Jammed,
			&row.Severity,
			&row.Type,
			&row.Method,
			&row.Confidence,
			&row.Satellites,
			&row.TrackedSatellites,
			&row.AvgCN0,
			&row.CN0Std,
			&row.CN0Variation,
			&row.AvgDoppler,
			&row.DopplerStd,
			&row.DopplerVariation,
			&row.Correlation,
		); err != nil {
			err = fmt.Errorf("scanning verdict: %w", err)
			return
		}
		verdicts = append(verdicts, row.record())
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && !errors.Is(cErr, sql.ErrTxDone) {
		*err = cErr
	}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
