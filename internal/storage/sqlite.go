package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/Lyx52/opencast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const occurrenceColumns = `org, event_id, agent_id, start_ms, end_ms, source, presenters,
	recording_state, last_heard_ms, last_modified_ms, checksum, wf_properties, ca_properties`

func (s *sqliteStore) Get(ctx context.Context, org, eventID string) (Occurrence, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrence WHERE org = ? AND event_id = ?`,
		org, eventID)
	o, err := scanOccurrence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Occurrence{}, ErrNotFound
	}
	return o, err
}

func (s *sqliteStore) Search(ctx context.Context, org string, f Filter) ([]Occurrence, error) {
	q := `SELECT ` + occurrenceColumns + ` FROM occurrence WHERE org = ?`
	args := []any{org}
	if f.AgentID != "" {
		q += ` AND agent_id = ?`
		args = append(args, f.AgentID)
	}
	if !f.StartsFrom.IsZero() {
		q += ` AND start_ms >= ?`
		args = append(args, f.StartsFrom.UnixMilli())
	}
	if !f.StartsTo.IsZero() {
		q += ` AND start_ms <= ?`
		args = append(args, f.StartsTo.UnixMilli())
	}
	if !f.EndFrom.IsZero() {
		q += ` AND end_ms >= ?`
		args = append(args, f.EndFrom.UnixMilli())
	}
	if !f.EndBefore.IsZero() {
		q += ` AND end_ms < ?`
		args = append(args, f.EndBefore.UnixMilli())
	}
	q += ` ORDER BY start_ms, event_id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOccurrences(rows)
}

func (s *sqliteStore) Conflicting(ctx context.Context, org, agentID string, start, end time.Time, separation time.Duration) ([]Occurrence, error) {
	sep := separation.Milliseconds()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrence
		 WHERE org = ? AND agent_id = ? AND start_ms - ? < ? AND end_ms + ? > ?
		 ORDER BY start_ms, event_id`,
		org, agentID, sep, end.UnixMilli(), sep, start.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOccurrences(rows)
}

func (s *sqliteStore) Upsert(ctx context.Context, o Occurrence) error {
	presenters, wfProps, caProps, err := marshalBlobs(o)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO occurrence (`+occurrenceColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(org, event_id) DO UPDATE SET
		   agent_id=excluded.agent_id, start_ms=excluded.start_ms, end_ms=excluded.end_ms,
		   source=excluded.source, presenters=excluded.presenters,
		   recording_state=excluded.recording_state, last_heard_ms=excluded.last_heard_ms,
		   last_modified_ms=excluded.last_modified_ms, checksum=excluded.checksum,
		   wf_properties=excluded.wf_properties, ca_properties=excluded.ca_properties`,
		o.Org, o.EventID, o.AgentID, o.Start.UnixMilli(), o.End.UnixMilli(), o.Source,
		presenters, nullStr(o.RecordingState), msOrZero(o.LastHeard), msOrZero(o.LastModified),
		o.Checksum, wfProps, caProps)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, org, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM occurrence WHERE org = ? AND event_id = ?`, org, eventID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM occurrence`).Scan(&n)
	return n, err
}

func (s *sqliteStore) Orgs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT org FROM occurrence ORDER BY org`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var org string
		if err := rows.Scan(&org); err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

func (s *sqliteStore) LastModifiedByAgent(ctx context.Context, org string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, last_modified_ms FROM agent_last_modified WHERE org = ?`, org)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]time.Time{}
	for rows.Next() {
		var agent string
		var ms int64
		if err := rows.Scan(&agent, &ms); err != nil {
			return nil, err
		}
		out[agent] = time.UnixMilli(ms).UTC()
	}
	return out, rows.Err()
}

func (s *sqliteStore) TouchAgent(ctx context.Context, org, agentID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_last_modified (org, agent_id, last_modified_ms) VALUES (?,?,?)
		 ON CONFLICT(org, agent_id) DO UPDATE SET last_modified_ms=excluded.last_modified_ms`,
		org, agentID, at.UnixMilli())
	return err
}

// ---- row marshalling, shared with the postgres driver ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOccurrence(r rowScanner) (Occurrence, error) {
	var o Occurrence
	var startMS, endMS, lastHeardMS, lastModifiedMS int64
	var presenters, recordingState, wfProps, caProps sql.NullString
	err := r.Scan(&o.Org, &o.EventID, &o.AgentID, &startMS, &endMS, &o.Source, &presenters,
		&recordingState, &lastHeardMS, &lastModifiedMS, &o.Checksum, &wfProps, &caProps)
	if err != nil {
		return Occurrence{}, err
	}
	o.Start = time.UnixMilli(startMS).UTC()
	o.End = time.UnixMilli(endMS).UTC()
	o.RecordingState = recordingState.String
	if lastHeardMS > 0 {
		o.LastHeard = time.UnixMilli(lastHeardMS).UTC()
	}
	if lastModifiedMS > 0 {
		o.LastModified = time.UnixMilli(lastModifiedMS).UTC()
	}
	if presenters.Valid && presenters.String != "" {
		if err := json.Unmarshal([]byte(presenters.String), &o.Presenters); err != nil {
			return Occurrence{}, fmt.Errorf("presenters blob: %w", err)
		}
	}
	if wfProps.Valid && wfProps.String != "" {
		if err := json.Unmarshal([]byte(wfProps.String), &o.WorkflowProperties); err != nil {
			return Occurrence{}, fmt.Errorf("wf_properties blob: %w", err)
		}
	}
	if caProps.Valid && caProps.String != "" {
		if err := json.Unmarshal([]byte(caProps.String), &o.CaptureAgentProperties); err != nil {
			return Occurrence{}, fmt.Errorf("ca_properties blob: %w", err)
		}
	}
	return o, nil
}

func collectOccurrences(rows *sql.Rows) ([]Occurrence, error) {
	var out []Occurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func marshalBlobs(o Occurrence) (presenters, wfProps, caProps any, err error) {
	if len(o.Presenters) > 0 {
		sorted := append([]string(nil), o.Presenters...)
		sort.Strings(sorted)
		b, err := json.Marshal(sorted)
		if err != nil {
			return nil, nil, nil, err
		}
		presenters = string(b)
	}
	if len(o.WorkflowProperties) > 0 {
		b, err := json.Marshal(o.WorkflowProperties)
		if err != nil {
			return nil, nil, nil, err
		}
		wfProps = string(b)
	}
	if len(o.CaptureAgentProperties) > 0 {
		b, err := json.Marshal(o.CaptureAgentProperties)
		if err != nil {
			return nil, nil, nil, err
		}
		caProps = string(b)
	}
	return presenters, wfProps, caProps, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func msOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
