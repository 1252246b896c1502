package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/grant-verifier/internal/db"
	"github.com/sells-group/grant-verifier/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	grantSelect = `SELECT id, name, official_url, funding_source, min_amount, max_amount, deadline, eligibility_summary, verification_status, verification_confidence, last_verified_at, verification_details, created_at, updated_at FROM grants`

	logColumns = `id, grant_id, confidence, status, url_valid, url_status_code, url_contains_grant_name, url_domain, is_government_domain, crossref_ran, amount_match, deadline_match, eligibility_match, discrepancies, fresh_data, trust_score, source_type, authority_tier, checks_passed, checks_total, issues, duration_ms, created_at`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_grant": grantSelect + ` WHERE id = $1`,
	"upsert_grant": `INSERT INTO grants (id, name, official_url, funding_source, min_amount, max_amount, deadline, eligibility_summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, official_url = EXCLUDED.official_url, funding_source = EXCLUDED.funding_source,
			min_amount = EXCLUDED.min_amount, max_amount = EXCLUDED.max_amount, deadline = EXCLUDED.deadline,
			eligibility_summary = EXCLUDED.eligibility_summary, updated_at = EXCLUDED.updated_at`,
	"update_grant_verification": `UPDATE grants SET verification_status = $1, verification_confidence = $2, last_verified_at = $3, verification_details = $4, updated_at = $5 WHERE id = $6`,
	"insert_verification_log": `INSERT INTO verification_logs (` + logColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
	"list_verification_logs": `SELECT ` + logColumns + ` FROM verification_logs WHERE grant_id = $1 ORDER BY created_at DESC LIMIT $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection. Statements
	// that reference tables not yet migrated are skipped.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		var exists bool
		if err := conn.QueryRow(ctx, `SELECT to_regclass('verification_logs') IS NOT NULL`).Scan(&exists); err != nil {
			return eris.Wrap(err, "postgres: check schema")
		}
		if !exists {
			return nil
		}
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS grants (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	official_url            TEXT NOT NULL DEFAULT '',
	funding_source          TEXT NOT NULL DEFAULT '',
	min_amount              DOUBLE PRECISION,
	max_amount              DOUBLE PRECISION,
	deadline                DATE,
	eligibility_summary     TEXT NOT NULL DEFAULT '',
	verification_status     TEXT NOT NULL DEFAULT 'unverified',
	verification_confidence INTEGER NOT NULL DEFAULT 0,
	last_verified_at        TIMESTAMPTZ,
	verification_details    JSONB,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_grants_verification_status ON grants(verification_status);
CREATE INDEX IF NOT EXISTS idx_grants_updated_at ON grants(updated_at DESC);

CREATE TABLE IF NOT EXISTS verification_logs (
	id                      TEXT PRIMARY KEY,
	grant_id                TEXT NOT NULL REFERENCES grants(id) ON DELETE CASCADE,
	confidence              INTEGER NOT NULL,
	status                  TEXT NOT NULL,
	url_valid               BOOLEAN NOT NULL DEFAULT false,
	url_status_code         INTEGER,
	url_contains_grant_name BOOLEAN NOT NULL DEFAULT false,
	url_domain              TEXT NOT NULL DEFAULT '',
	is_government_domain    BOOLEAN NOT NULL DEFAULT false,
	crossref_ran            BOOLEAN NOT NULL DEFAULT false,
	amount_match            BOOLEAN,
	deadline_match          BOOLEAN,
	eligibility_match       BOOLEAN,
	discrepancies           JSONB NOT NULL DEFAULT '[]',
	fresh_data              JSONB NOT NULL DEFAULT '{}',
	trust_score             INTEGER NOT NULL DEFAULT 0,
	source_type             TEXT NOT NULL DEFAULT 'unknown',
	authority_tier          TEXT NOT NULL DEFAULT 'none',
	checks_passed           INTEGER NOT NULL DEFAULT 0,
	checks_total            INTEGER NOT NULL DEFAULT 0,
	issues                  JSONB NOT NULL DEFAULT '[]',
	duration_ms             BIGINT NOT NULL DEFAULT 0,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_verification_logs_grant_created ON verification_logs(grant_id, created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetGrant(ctx context.Context, id string) (*model.Grant, error) {
	g, err := scanPgGrant(s.pool.QueryRow(ctx, grantSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: grant %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get grant %s", id)
	}
	return g, nil
}

func (s *PostgresStore) ListGrants(ctx context.Context, filter GrantFilter) ([]model.Grant, error) {
	query, args, err := listGrantsQuery("postgres", filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list grants")
	}
	defer rows.Close()

	var grants []model.Grant
	for rows.Next() {
		g, err := scanPgGrant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan grant")
		}
		grants = append(grants, *g)
	}
	return grants, eris.Wrap(rows.Err(), "postgres: list grants rows")
}

func (s *PostgresStore) UpsertGrant(ctx context.Context, g *model.Grant) error {
	prepareGrantForWrite(g, time.Now().UTC())

	_, err := s.pool.Exec(ctx, preparedStatements["upsert_grant"],
		g.ID, g.Name, g.OfficialURL, g.FundingSource, g.MinAmount, g.MaxAmount,
		g.Deadline, g.EligibilitySummary, g.CreatedAt, g.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert grant %s", g.ID)
}

// grantImportColumns are the columns written by ImportGrants. Verification
// fields are left alone on conflict.
var grantImportColumns = []string{
	"id", "name", "official_url", "funding_source", "min_amount", "max_amount",
	"deadline", "eligibility_summary", "created_at", "updated_at",
}

// ImportGrants bulk-upserts grants via COPY into a temp table.
func (s *PostgresStore) ImportGrants(ctx context.Context, grants []model.Grant) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(grants))
	for i := range grants {
		g := &grants[i]
		prepareGrantForWrite(g, now)
		rows[i] = []any{
			g.ID, g.Name, g.OfficialURL, g.FundingSource, g.MinAmount, g.MaxAmount,
			g.Deadline, g.EligibilitySummary, g.CreatedAt, g.UpdatedAt,
		}
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "grants",
		Columns:      grantImportColumns,
		ConflictKeys: []string{"id"},
		UpdateCols: []string{
			"name", "official_url", "funding_source", "min_amount", "max_amount",
			"deadline", "eligibility_summary", "updated_at",
		},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import grants")
	}
	return n, nil
}

func (s *PostgresStore) UpdateGrantVerification(ctx context.Context, id string, upd model.GrantVerificationUpdate) error {
	detailsJSON, err := json.Marshal(upd.Details)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verification details")
	}

	tag, err := s.pool.Exec(ctx, preparedStatements["update_grant_verification"],
		string(upd.Status), upd.Confidence, upd.VerifiedAt, detailsJSON, upd.VerifiedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update grant verification %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: grant %s", id)
	}
	return nil
}

func (s *PostgresStore) InsertVerificationLog(ctx context.Context, l *model.VerificationLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	enc, err := encodeLogJSON(l)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verification log")
	}

	_, err = s.pool.Exec(ctx, preparedStatements["insert_verification_log"],
		l.ID, l.GrantID, l.Confidence, string(l.Status),
		l.URLValid, l.URLStatusCode, l.URLContainsGrantName, l.URLDomain, l.IsGovernmentDomain,
		l.CrossrefRan, l.AmountMatch.Ptr(), l.DeadlineMatch.Ptr(), l.EligibilityMatch.Ptr(),
		enc.discrepancies, enc.freshData,
		l.TrustScore, string(l.SourceType), string(l.AuthorityTier),
		l.ChecksPassed, l.ChecksTotal, enc.issues, l.DurationMS, l.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert verification log for %s", l.GrantID)
}

func (s *PostgresStore) ListVerificationLogs(ctx context.Context, grantID string, limit int) ([]model.VerificationLog, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_verification_logs"], grantID, clampLimit(limit, defaultLogLimit))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list verification logs %s", grantID)
	}
	defer rows.Close()

	var logs []model.VerificationLog
	for rows.Next() {
		var (
			l                       model.VerificationLog
			status, source, tier    string
			amount, deadline, elig  *bool
			discs, fresh, issuesRaw []byte
		)
		if err := rows.Scan(
			&l.ID, &l.GrantID, &l.Confidence, &status,
			&l.URLValid, &l.URLStatusCode, &l.URLContainsGrantName, &l.URLDomain, &l.IsGovernmentDomain,
			&l.CrossrefRan, &amount, &deadline, &elig,
			&discs, &fresh,
			&l.TrustScore, &source, &tier,
			&l.ChecksPassed, &l.ChecksTotal, &issuesRaw, &l.DurationMS, &l.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan verification log")
		}
		l.Status = model.VerificationStatus(status)
		l.SourceType = model.SourceType(source)
		l.AuthorityTier = model.AuthorityTier(tier)
		l.AmountMatch = model.MatchFromPtr(amount)
		l.DeadlineMatch = model.MatchFromPtr(deadline)
		l.EligibilityMatch = model.MatchFromPtr(elig)
		if err := decodeLogJSON(&l, discs, fresh, issuesRaw); err != nil {
			return nil, eris.Wrap(err, "postgres: decode verification log")
		}
		logs = append(logs, l)
	}
	return logs, eris.Wrap(rows.Err(), "postgres: list verification logs rows")
}

func scanPgGrant(row scannable) (*model.Grant, error) {
	var (
		g       model.Grant
		status  string
		details []byte
	)
	if err := row.Scan(
		&g.ID, &g.Name, &g.OfficialURL, &g.FundingSource, &g.MinAmount, &g.MaxAmount,
		&g.Deadline, &g.EligibilitySummary, &status, &g.VerificationConfidence,
		&g.LastVerifiedAt, &details, &g.CreatedAt, &g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	g.VerificationStatus = model.VerificationStatus(status)
	if len(details) > 0 {
		g.VerificationDetails = &model.VerificationDetails{}
		if err := json.Unmarshal(details, g.VerificationDetails); err != nil {
			return nil, eris.Wrap(err, "unmarshal verification details")
		}
	}
	return &g, nil
}
