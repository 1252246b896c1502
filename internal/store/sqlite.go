package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/grant-verifier/internal/model"
)

// sqliteTime is fixed width so stored timestamps sort lexically.
const (
	sqliteTime = "2006-01-02T15:04:05.000000000Z"
	sqliteDate = "2006-01-02"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied by the driver on every new connection.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// NewSQLite opens a SQLite database at the given path with foreign keys
// enforced and WAL mode on every pooled connection.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

// sqliteDSN appends the connection pragmas to dsn, keeping any query
// parameters the caller already set.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS grants (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	official_url            TEXT NOT NULL DEFAULT '',
	funding_source          TEXT NOT NULL DEFAULT '',
	min_amount              REAL,
	max_amount              REAL,
	deadline                TEXT,
	eligibility_summary     TEXT NOT NULL DEFAULT '',
	verification_status     TEXT NOT NULL DEFAULT 'unverified',
	verification_confidence INTEGER NOT NULL DEFAULT 0,
	last_verified_at        TEXT,
	verification_details    TEXT,
	created_at              TEXT NOT NULL,
	updated_at              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS verification_logs (
	id                      TEXT PRIMARY KEY,
	grant_id                TEXT NOT NULL REFERENCES grants(id) ON DELETE CASCADE,
	confidence              INTEGER NOT NULL,
	status                  TEXT NOT NULL,
	url_valid               INTEGER NOT NULL DEFAULT 0,
	url_status_code         INTEGER,
	url_contains_grant_name INTEGER NOT NULL DEFAULT 0,
	url_domain              TEXT NOT NULL DEFAULT '',
	is_government_domain    INTEGER NOT NULL DEFAULT 0,
	crossref_ran            INTEGER NOT NULL DEFAULT 0,
	amount_match            INTEGER,
	deadline_match          INTEGER,
	eligibility_match       INTEGER,
	discrepancies           TEXT NOT NULL DEFAULT '[]',
	fresh_data              TEXT NOT NULL DEFAULT '{}',
	trust_score             INTEGER NOT NULL DEFAULT 0,
	source_type             TEXT NOT NULL DEFAULT 'unknown',
	authority_tier          TEXT NOT NULL DEFAULT 'none',
	checks_passed           INTEGER NOT NULL DEFAULT 0,
	checks_total            INTEGER NOT NULL DEFAULT 0,
	issues                  TEXT NOT NULL DEFAULT '[]',
	duration_ms             INTEGER NOT NULL DEFAULT 0,
	created_at              TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_grants_verification_status ON grants(verification_status);
CREATE INDEX IF NOT EXISTS idx_verification_logs_grant_created ON verification_logs(grant_id, created_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetGrant(ctx context.Context, id string) (*model.Grant, error) {
	g, err := scanSQLiteGrant(s.db.QueryRowContext(ctx, grantSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: grant %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get grant %s", id)
	}
	return g, nil
}

func (s *SQLiteStore) ListGrants(ctx context.Context, filter GrantFilter) ([]model.Grant, error) {
	query, args, err := listGrantsQuery("sqlite3", filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list grants")
	}
	defer rows.Close() //nolint:errcheck

	var grants []model.Grant
	for rows.Next() {
		g, err := scanSQLiteGrant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan grant")
		}
		grants = append(grants, *g)
	}
	return grants, eris.Wrap(rows.Err(), "sqlite: list grants rows")
}

const sqliteUpsertGrant = `INSERT INTO grants (id, name, official_url, funding_source, min_amount, max_amount, deadline, eligibility_summary, verification_status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET name = excluded.name, official_url = excluded.official_url, funding_source = excluded.funding_source,
		min_amount = excluded.min_amount, max_amount = excluded.max_amount, deadline = excluded.deadline,
		eligibility_summary = excluded.eligibility_summary, updated_at = excluded.updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSQLiteGrant(ctx context.Context, ex execer, g *model.Grant) error {
	_, err := ex.ExecContext(ctx, sqliteUpsertGrant,
		g.ID, g.Name, g.OfficialURL, g.FundingSource, g.MinAmount, g.MaxAmount,
		formatDate(g.Deadline), g.EligibilitySummary, string(g.VerificationStatus),
		g.CreatedAt.UTC().Format(sqliteTime), g.UpdatedAt.UTC().Format(sqliteTime),
	)
	return err
}

func (s *SQLiteStore) UpsertGrant(ctx context.Context, g *model.Grant) error {
	prepareGrantForWrite(g, time.Now().UTC())
	return eris.Wrapf(upsertSQLiteGrant(ctx, s.db, g), "sqlite: upsert grant %s", g.ID)
}

// ImportGrants upserts all grants in one transaction.
func (s *SQLiteStore) ImportGrants(ctx context.Context, grants []model.Grant) (int64, error) {
	if len(grants) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import grants: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i := range grants {
		g := &grants[i]
		prepareGrantForWrite(g, now)
		if err := upsertSQLiteGrant(ctx, tx, g); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import grant %s", g.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import grants: commit tx")
	}
	return int64(len(grants)), nil
}

func (s *SQLiteStore) UpdateGrantVerification(ctx context.Context, id string, upd model.GrantVerificationUpdate) error {
	detailsJSON, err := json.Marshal(upd.Details)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal verification details")
	}
	at := upd.VerifiedAt.UTC().Format(sqliteTime)
	res, err := s.db.ExecContext(ctx,
		`UPDATE grants SET verification_status = ?, verification_confidence = ?, last_verified_at = ?, verification_details = ?, updated_at = ? WHERE id = ?`,
		string(upd.Status), upd.Confidence, at, string(detailsJSON), at, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update grant verification %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) InsertVerificationLog(ctx context.Context, l *model.VerificationLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	enc, err := encodeLogJSON(l)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal verification log")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verification_logs (`+logColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.GrantID, l.Confidence, string(l.Status),
		l.URLValid, l.URLStatusCode, l.URLContainsGrantName, l.URLDomain, l.IsGovernmentDomain,
		l.CrossrefRan, l.AmountMatch.Ptr(), l.DeadlineMatch.Ptr(), l.EligibilityMatch.Ptr(),
		string(enc.discrepancies), string(enc.freshData),
		l.TrustScore, string(l.SourceType), string(l.AuthorityTier),
		l.ChecksPassed, l.ChecksTotal, string(enc.issues), l.DurationMS,
		l.CreatedAt.UTC().Format(sqliteTime),
	)
	return eris.Wrapf(err, "sqlite: insert verification log for %s", l.GrantID)
}

func (s *SQLiteStore) ListVerificationLogs(ctx context.Context, grantID string, limit int) ([]model.VerificationLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM verification_logs WHERE grant_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		grantID, clampLimit(limit, defaultLogLimit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list verification logs %s", grantID)
	}
	defer rows.Close() //nolint:errcheck

	var logs []model.VerificationLog
	for rows.Next() {
		var (
			l                       model.VerificationLog
			status, source, tier    string
			statusCode              sql.NullInt64
			amount, deadline, elig  sql.NullBool
			discs, fresh, issuesRaw string
			createdAt               string
		)
		if err := rows.Scan(
			&l.ID, &l.GrantID, &l.Confidence, &status,
			&l.URLValid, &statusCode, &l.URLContainsGrantName, &l.URLDomain, &l.IsGovernmentDomain,
			&l.CrossrefRan, &amount, &deadline, &elig,
			&discs, &fresh,
			&l.TrustScore, &source, &tier,
			&l.ChecksPassed, &l.ChecksTotal, &issuesRaw, &l.DurationMS, &createdAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan verification log")
		}
		l.Status = model.VerificationStatus(status)
		l.SourceType = model.SourceType(source)
		l.AuthorityTier = model.AuthorityTier(tier)
		if statusCode.Valid {
			code := int(statusCode.Int64)
			l.URLStatusCode = &code
		}
		l.AmountMatch = model.MatchFromPtr(nullBoolPtr(amount))
		l.DeadlineMatch = model.MatchFromPtr(nullBoolPtr(deadline))
		l.EligibilityMatch = model.MatchFromPtr(nullBoolPtr(elig))
		if l.CreatedAt, err = time.Parse(sqliteTime, createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse created_at")
		}
		if err := decodeLogJSON(&l, []byte(discs), []byte(fresh), []byte(issuesRaw)); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode verification log")
		}
		logs = append(logs, l)
	}
	return logs, eris.Wrap(rows.Err(), "sqlite: list verification logs rows")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: grant %s", id)
	}
	return nil
}

func scanSQLiteGrant(row scannable) (*model.Grant, error) {
	var (
		g                    model.Grant
		status               string
		minAmount, maxAmount sql.NullFloat64
		deadline, verifiedAt sql.NullString
		details              sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&g.ID, &g.Name, &g.OfficialURL, &g.FundingSource, &minAmount, &maxAmount,
		&deadline, &g.EligibilitySummary, &status, &g.VerificationConfidence,
		&verifiedAt, &details, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	g.VerificationStatus = model.VerificationStatus(status)
	if minAmount.Valid {
		g.MinAmount = &minAmount.Float64
	}
	if maxAmount.Valid {
		g.MaxAmount = &maxAmount.Float64
	}

	var err error
	if deadline.Valid && deadline.String != "" {
		d, err := time.Parse(sqliteDate, deadline.String)
		if err != nil {
			return nil, eris.Wrap(err, "parse deadline")
		}
		g.Deadline = &d
	}
	if verifiedAt.Valid && verifiedAt.String != "" {
		at, err := time.Parse(sqliteTime, verifiedAt.String)
		if err != nil {
			return nil, eris.Wrap(err, "parse last_verified_at")
		}
		g.LastVerifiedAt = &at
	}
	if details.Valid && details.String != "" {
		g.VerificationDetails = &model.VerificationDetails{}
		if err := json.Unmarshal([]byte(details.String), g.VerificationDetails); err != nil {
			return nil, eris.Wrap(err, "unmarshal verification details")
		}
	}
	if g.CreatedAt, err = time.Parse(sqliteTime, createdAt); err != nil {
		return nil, eris.Wrap(err, "parse created_at")
	}
	if g.UpdatedAt, err = time.Parse(sqliteTime, updatedAt); err != nil {
		return nil, eris.Wrap(err, "parse updated_at")
	}
	return &g, nil
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(sqliteDate)
}

func nullBoolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	return &b.Bool
}
