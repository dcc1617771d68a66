package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "github.com/Lyx52/opencast/pkg/logx"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS occurrence (
    org              TEXT NOT NULL,
    event_id         TEXT NOT NULL,
    agent_id         TEXT NOT NULL,
    start_ms         BIGINT NOT NULL,
    end_ms           BIGINT NOT NULL,
    source           TEXT NOT NULL DEFAULT '',
    presenters       TEXT,
    recording_state  TEXT,
    last_heard_ms    BIGINT NOT NULL DEFAULT 0,
    last_modified_ms BIGINT NOT NULL DEFAULT 0,
    checksum         TEXT NOT NULL DEFAULT '',
    wf_properties    TEXT,
    ca_properties    TEXT,
    PRIMARY KEY (org, event_id)
);
CREATE INDEX IF NOT EXISTS idx_occurrence_agent_interval
    ON occurrence (org, agent_id, start_ms, end_ms);
CREATE TABLE IF NOT EXISTS agent_last_modified (
    org              TEXT NOT NULL,
    agent_id         TEXT NOT NULL,
    last_modified_ms BIGINT NOT NULL,
    PRIMARY KEY (org, agent_id)
);`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.Path)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	st := &postgresStore{pool: pool, log: log}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return st, nil
}

func (s *postgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *postgresStore) Get(ctx context.Context, org, eventID string) (Occurrence, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrence WHERE org = $1 AND event_id = $2`,
		org, eventID)
	o, err := scanOccurrence(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Occurrence{}, ErrNotFound
	}
	return o, err
}

func (s *postgresStore) Search(ctx context.Context, org string, f Filter) ([]Occurrence, error) {
	q := `SELECT ` + occurrenceColumns + ` FROM occurrence WHERE org = $1`
	args := []any{org}
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		q += fmt.Sprintf(` AND agent_id = $%d`, len(args))
	}
	if !f.StartsFrom.IsZero() {
		args = append(args, f.StartsFrom.UnixMilli())
		q += fmt.Sprintf(` AND start_ms >= $%d`, len(args))
	}
	if !f.StartsTo.IsZero() {
		args = append(args, f.StartsTo.UnixMilli())
		q += fmt.Sprintf(` AND start_ms <= $%d`, len(args))
	}
	if !f.EndFrom.IsZero() {
		args = append(args, f.EndFrom.UnixMilli())
		q += fmt.Sprintf(` AND end_ms >= $%d`, len(args))
	}
	if !f.EndBefore.IsZero() {
		args = append(args, f.EndBefore.UnixMilli())
		q += fmt.Sprintf(` AND end_ms < $%d`, len(args))
	}
	q += ` ORDER BY start_ms, event_id`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPgOccurrences(rows)
}

func (s *postgresStore) Conflicting(ctx context.Context, org, agentID string, start, end time.Time, separation time.Duration) ([]Occurrence, error) {
	sep := separation.Milliseconds()
	rows, err := s.pool.Query(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrence
		 WHERE org = $1 AND agent_id = $2 AND start_ms - $3 < $4 AND end_ms + $3 > $5
		 ORDER BY start_ms, event_id`,
		org, agentID, sep, end.UnixMilli(), start.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPgOccurrences(rows)
}

func (s *postgresStore) Upsert(ctx context.Context, o Occurrence) error {
	presenters, wfProps, caProps, err := marshalBlobs(o)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO occurrence (`+occurrenceColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 ON CONFLICT (org, event_id) DO UPDATE SET
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

func (s *postgresStore) Delete(ctx context.Context, org, eventID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM occurrence WHERE org = $1 AND event_id = $2`, org, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM occurrence`).Scan(&n)
	return n, err
}

func (s *postgresStore) Orgs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT org FROM occurrence ORDER BY org`)
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

func (s *postgresStore) LastModifiedByAgent(ctx context.Context, org string) (map[string]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_id, last_modified_ms FROM agent_last_modified WHERE org = $1`, org)
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

func (s *postgresStore) TouchAgent(ctx context.Context, org, agentID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_last_modified (org, agent_id, last_modified_ms) VALUES ($1,$2,$3)
		 ON CONFLICT (org, agent_id) DO UPDATE SET last_modified_ms=excluded.last_modified_ms`,
		org, agentID, at.UnixMilli())
	return err
}

func collectPgOccurrences(rows pgx.Rows) ([]Occurrence, error) {
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
